// Package usage feeds referral stats from the order and subscription stores.
package usage

import (
	"context"

	orderdomain "github.com/smallbiznis/futorumeshi/internal/order/domain"
	"github.com/smallbiznis/futorumeshi/internal/referral/domain"
	subscriptiondomain "github.com/smallbiznis/futorumeshi/internal/subscription/domain"
	"go.uber.org/fx"
)

type Params struct {
	fx.In

	Orders        orderdomain.Service
	Subscriptions subscriptiondomain.Service
}

type Source struct {
	orders        orderdomain.Service
	subscriptions subscriptiondomain.Service
}

func New(p Params) domain.UsageSource {
	return &Source{orders: p.Orders, subscriptions: p.Subscriptions}
}

func (s *Source) ReferredOrders(ctx context.Context, code string) ([]domain.ReferredOrder, error) {
	orders, err := s.orders.ListReferred(ctx, code)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReferredOrder, 0, len(orders))
	for _, order := range orders {
		out = append(out, domain.ReferredOrder{
			ReferralCode: order.ReferralCode,
			MenuSet:      order.MenuSet,
			CreatedAt:    order.CreatedAt,
		})
	}
	return out, nil
}

func (s *Source) SubscriptionEvents(ctx context.Context, code string) ([]domain.SubscriptionEvent, error) {
	events, err := s.subscriptions.ListReferralEvents(ctx, code)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SubscriptionEvent, 0, len(events))
	for _, event := range events {
		out = append(out, domain.SubscriptionEvent{
			SubscriptionID: event.SubscriptionID.String(),
			ReferralCode:   event.ReferralCode,
			PlanID:         event.PlanID,
			MenuSet:        event.MenuSet,
			Kind:           string(event.Kind),
			OccurredAt:     event.BillingDate,
		})
	}
	return out, nil
}
