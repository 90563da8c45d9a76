package domain

import (
	"strings"
	"time"

	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
)

const (
	EventKindInitial = "INITIAL"
	EventKindRenewal = "RENEWAL"
)

// ReferredOrder is the slice of a one-time order that matters for commission.
type ReferredOrder struct {
	ReferralCode string
	MenuSet      string
	CreatedAt    time.Time
}

// SubscriptionEvent is one billing event of a referred subscription.
type SubscriptionEvent struct {
	SubscriptionID string
	ReferralCode   string
	PlanID         string
	MenuSet        string
	Kind           string
	OccurredAt     time.Time
}

// OrderUsageRecords turns referred one-time orders into usage records. Every order is
// classified as the trial tier; only its menu-set text can move it to another rule.
func OrderUsageRecords(orders []ReferredOrder) []UsageRecord {
	records := make([]UsageRecord, 0, len(orders))
	for _, order := range orders {
		code := strings.TrimSpace(order.ReferralCode)
		if code == "" {
			continue
		}
		commission := CalculateCommission(plandomain.PlanTrial6, order.MenuSet)
		records = append(records, UsageRecord{
			ReferralCode: code,
			PlanType:     commission.PlanType,
			PlanID:       plandomain.PlanTrial6,
			CreatedAt:    order.CreatedAt,
			Commission:   commission.Amount,
		})
	}
	return records
}

// SubscriptionUsageRecords yields one record per subscription, from its initial contract
// event. Renewals never earn commission.
func SubscriptionUsageRecords(events []SubscriptionEvent) []UsageRecord {
	records := make([]UsageRecord, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, event := range events {
		code := strings.TrimSpace(event.ReferralCode)
		if code == "" || event.Kind != EventKindInitial {
			continue
		}
		if _, dup := seen[event.SubscriptionID]; dup {
			continue
		}
		seen[event.SubscriptionID] = struct{}{}

		commission := CalculateCommission(event.PlanID, event.MenuSet)
		records = append(records, UsageRecord{
			ReferralCode: code,
			PlanType:     commission.PlanType,
			PlanID:       event.PlanID,
			CreatedAt:    event.OccurredAt,
			Commission:   commission.Amount,
		})
	}
	return records
}
