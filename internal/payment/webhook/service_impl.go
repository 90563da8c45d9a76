package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"github.com/smallbiznis/futorumeshi/internal/observability/logger"
	"github.com/smallbiznis/futorumeshi/internal/observability/metrics"
	"github.com/smallbiznis/futorumeshi/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/futorumeshi/internal/order/domain"
	"github.com/smallbiznis/futorumeshi/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/futorumeshi/internal/payment/domain"
	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/futorumeshi/internal/subscription/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          paymentdomain.Repository
	Adapters      *adapters.Registry
	Orders        orderdomain.Service
	Subscriptions subscriptiondomain.Service
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          paymentdomain.Repository
	adapters      *adapters.Registry
	orders        orderdomain.Service
	subscriptions subscriptiondomain.Service
	metrics       *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.webhook"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		adapters:      p.Adapters,
		orders:        p.Orders,
		subscriptions: p.Subscriptions,
		metrics:       p.Metrics,
	}
}

// IngestWebhook verifies, dedups and applies one provider webhook.
// Permanent business rejections are recorded and swallowed so the provider stops retrying;
// anything else is returned and the event stays unprocessed for the next delivery.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.IngestResult{}, paymentdomain.ErrInvalidProvider
	}
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return paymentdomain.IngestResult{}, err
	}
	if !json.Valid(payload) {
		return paymentdomain.IngestResult{}, paymentdomain.ErrInvalidPayload
	}

	ctx, span := tracing.Start(ctx, "payment.webhook", attribute.String("payment.provider", provider))
	defer span.End()

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.metrics.RecordPaymentEvent(ctx, provider, "unknown", paymentdomain.OutcomeRejected)
		span.SetStatus(codes.Error, "signature rejected")
		return paymentdomain.IngestResult{}, err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.metrics.RecordPaymentEvent(ctx, provider, "other", paymentdomain.OutcomeIgnored)
			return paymentdomain.IngestResult{Outcome: paymentdomain.OutcomeIgnored}, nil
		}
		return paymentdomain.IngestResult{}, err
	}
	span.SetAttributes(attribute.String("payment.event_type", event.Type))

	result := paymentdomain.IngestResult{EventID: event.ProviderEventID, EventType: event.Type}
	log := logger.WithContext(ctx, s.log).With(
		zap.String("provider", provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("event_type", event.Type),
	)

	record, fresh, err := s.claimEvent(ctx, provider, event, payload)
	if err != nil {
		return result, err
	}
	if !fresh && record.ProcessedAt != nil {
		log.Info("payment event already processed")
		result.Outcome = paymentdomain.OutcomeDuplicate
		s.metrics.RecordPaymentEvent(ctx, provider, event.Type, result.Outcome)
		return result, nil
	}

	if err := s.dispatch(ctx, event); err != nil {
		if !isPermanent(err) {
			log.Error("payment event failed", zap.Error(err))
			result.Outcome = paymentdomain.OutcomeFailed
			s.metrics.RecordPaymentEvent(ctx, provider, event.Type, result.Outcome)
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "dispatch failed")
			return result, err
		}
		log.Warn("payment event rejected", zap.Error(err))
		result.Outcome = paymentdomain.OutcomeRejected
	} else {
		result.Outcome = paymentdomain.OutcomeProcessed
	}

	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, result.Outcome, s.clock.Now()); err != nil {
		return result, err
	}
	s.metrics.RecordPaymentEvent(ctx, provider, event.Type, result.Outcome)
	log.Info("payment event handled", zap.String("outcome", result.Outcome))
	return result, nil
}

// claimEvent stores the event on first sight. A redelivery returns the existing row.
func (s *Service) claimEvent(ctx context.Context, provider string, event *paymentdomain.PaymentEvent, payload []byte) (*paymentdomain.EventRecord, bool, error) {
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return record, true, nil
	}

	existing, err := s.repo.FindEvent(ctx, s.db, provider, event.ProviderEventID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.New("payment event vanished after conflict")
	}
	return existing, false, nil
}

func (s *Service) dispatch(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	switch event.Type {
	case paymentdomain.EventTypeOrderPaid:
		checkout := event.Checkout
		_, err := s.orders.CreateFromCheckout(ctx, orderdomain.CheckoutOrderRequest{
			CheckoutSessionID: checkout.SessionID,
			CustomerEmail:     checkout.CustomerEmail,
			CustomerName:      checkout.CustomerName,
			MenuSet:           checkout.Metadata.MenuSet,
			PlanID:            checkout.Metadata.PlanID,
			Quantity:          checkout.Metadata.Quantity,
			AmountTotal:       checkout.AmountTotal,
			Currency:          checkout.Currency,
			ReferralCode:      checkout.Metadata.ReferralCode,
			Metadata:          checkout.RawMetadata,
		})
		return err

	case paymentdomain.EventTypeSubscriptionCreated:
		checkout := event.Checkout
		_, err := s.subscriptions.CreateFromCheckout(ctx, subscriptiondomain.CheckoutSubscriptionRequest{
			ProviderSubscriptionID: checkout.ProviderSubscriptionID,
			ProviderCustomerID:     checkout.ProviderCustomerID,
			ProviderInvoiceID:      checkout.ProviderInvoiceID,
			CheckoutSessionID:      checkout.SessionID,
			CustomerEmail:          checkout.CustomerEmail,
			CustomerName:           checkout.CustomerName,
			PlanID:                 checkout.Metadata.PlanID,
			MenuSet:                checkout.Metadata.MenuSet,
			ReferralCode:           checkout.Metadata.ReferralCode,
			PreferredDeliveryDate:  checkout.Metadata.PreferredDeliveryDate,
			DeliveryTimeSlot:       checkout.Metadata.DeliveryTimeSlot,
			BillingDate:            event.OccurredAt,
			AmountTotal:            checkout.AmountTotal,
			Metadata:               checkout.RawMetadata,
		})
		return err

	case paymentdomain.EventTypeSubscriptionRenewed:
		_, err := s.subscriptions.RecordRenewal(ctx, subscriptiondomain.RenewalRequest{
			ProviderSubscriptionID: event.Invoice.ProviderSubscriptionID,
			ProviderInvoiceID:      event.Invoice.ProviderInvoiceID,
			BillingDate:            event.Invoice.PaidAt,
			Amount:                 event.Invoice.AmountPaid,
		})
		return err

	case paymentdomain.EventTypeSubscriptionCanceled:
		_, err := s.subscriptions.CancelByProviderID(ctx, event.Cancellation.ProviderSubscriptionID, event.Cancellation.CanceledAt)
		return err
	}
	return paymentdomain.ErrInvalidEvent
}

var permanentErrors = []error{
	plandomain.ErrInvalidPlan,
	paymentdomain.ErrInvalidEvent,
	orderdomain.ErrInvalidSession,
	orderdomain.ErrInvalidEmail,
	orderdomain.ErrInvalidAmount,
	orderdomain.ErrInvalidQuantity,
	subscriptiondomain.ErrInvalidProviderID,
	subscriptiondomain.ErrInvalidInvoiceID,
	subscriptiondomain.ErrInvalidEmail,
	subscriptiondomain.ErrNotFound,
	subscriptiondomain.ErrNotActive,
}

func isPermanent(err error) bool {
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
