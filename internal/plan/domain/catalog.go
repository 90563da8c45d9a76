// Package domain holds the subscription plan catalog. The catalog is read-only reference
// data; plan ids are persisted on subscriptions, so renaming one needs a data migration.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	PlanMonthly12 = "subscription-monthly-12"
	PlanMonthly24 = "subscription-monthly-24"
	PlanMonthly48 = "subscription-monthly-48"

	// PlanTrial6 is the one-shot trial box. It is sold as a one-time order and is not a catalog plan.
	PlanTrial6 = "trial-6"
)

const (
	mealsPerDelivery       = 12
	shippingFeePerDelivery = 1500

	fallbackPlanName = "ふとるめし定期便"
	menuSetName      = "ふとるめし12食セット"
)

var ErrInvalidPlan = errors.New("invalid_plan")

type PlanConfig struct {
	PlanID                 string `json:"plan_id"`
	Name                   string `json:"name"`
	MealsPerDelivery       int    `json:"meals_per_delivery"`
	DeliveriesPerMonth     int    `json:"deliveries_per_month"`
	ProductPrice           int    `json:"product_price"`
	ShippingFeePerDelivery int    `json:"shipping_fee_per_delivery"`
	MonthlyTotal           int    `json:"monthly_total"`
}

// MealsPerMonth is the number of meals shipped over one billing period.
func (p PlanConfig) MealsPerMonth() int {
	return p.MealsPerDelivery * p.DeliveriesPerMonth
}

var catalog = map[string]PlanConfig{
	PlanMonthly12: {
		PlanID:                 PlanMonthly12,
		Name:                   "12食定期プラン（月1回お届け）",
		MealsPerDelivery:       mealsPerDelivery,
		DeliveriesPerMonth:     1,
		ProductPrice:           9600,
		ShippingFeePerDelivery: shippingFeePerDelivery,
		MonthlyTotal:           11100,
	},
	PlanMonthly24: {
		PlanID:                 PlanMonthly24,
		Name:                   "24食定期プラン（月2回お届け）",
		MealsPerDelivery:       mealsPerDelivery,
		DeliveriesPerMonth:     2,
		ProductPrice:           18000,
		ShippingFeePerDelivery: shippingFeePerDelivery,
		MonthlyTotal:           21000,
	},
	PlanMonthly48: {
		PlanID:                 PlanMonthly48,
		Name:                   "48食定期プラン（毎週お届け）",
		MealsPerDelivery:       mealsPerDelivery,
		DeliveriesPerMonth:     4,
		ProductPrice:           33600,
		ShippingFeePerDelivery: shippingFeePerDelivery,
		MonthlyTotal:           39600,
	},
}

// GetPlanConfig returns the catalog entry for planID or ErrInvalidPlan.
func GetPlanConfig(planID string) (PlanConfig, error) {
	plan, ok := catalog[planID]
	if !ok {
		return PlanConfig{}, fmt.Errorf("%w: %q", ErrInvalidPlan, planID)
	}
	return plan, nil
}

func IsValidPlanID(planID string) bool {
	_, ok := catalog[planID]
	return ok
}

// GetPlanName never fails; unknown ids get a generic name so display paths keep rendering.
func GetPlanName(planID string) string {
	if plan, ok := catalog[planID]; ok {
		return plan.Name
	}
	return fallbackPlanName
}

// GetMenuSetName returns the assortment shipped for planID. Every plan ships the same set.
func GetMenuSetName(planID string) string {
	_ = planID
	return menuSetName
}

// Plans lists the catalog ordered by delivery cadence.
func Plans() []PlanConfig {
	plans := make([]PlanConfig, 0, len(catalog))
	for _, plan := range catalog {
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].DeliveriesPerMonth != plans[j].DeliveriesPerMonth {
			return plans[i].DeliveriesPerMonth < plans[j].DeliveriesPerMonth
		}
		return plans[i].PlanID < plans[j].PlanID
	})
	return plans
}

// NormalizePlanID trims whitespace and lower-cases ids coming from checkout metadata.
func NormalizePlanID(planID string) string {
	return strings.ToLower(strings.TrimSpace(planID))
}
