package domain

import (
	"strings"

	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
)

const unknownPlanType = "不明"

type Commission struct {
	Amount   int    `json:"commission"`
	PlanType string `json:"planType"`
}

type commissionRule struct {
	planID   string
	keywords []string
	result   Commission
}

func (r commissionRule) matches(planID, menuSetLabel string) bool {
	if planID == r.planID {
		return true
	}
	for _, keyword := range r.keywords {
		if strings.Contains(menuSetLabel, keyword) {
			return true
		}
	}
	return false
}

// Evaluated top to bottom, first match wins. A label naming a higher tier beats a
// lower-tier plan id that appears later in the list.
var commissionRules = []commissionRule{
	{planID: plandomain.PlanTrial6, keywords: []string{"お試し", "6食"}, result: Commission{Amount: 500, PlanType: "お試し6食プラン"}},
	{planID: plandomain.PlanMonthly48, keywords: []string{"48食"}, result: Commission{Amount: 4000, PlanType: "48食定期プラン"}},
	{planID: plandomain.PlanMonthly24, keywords: []string{"24食"}, result: Commission{Amount: 2500, PlanType: "24食定期プラン"}},
	{planID: plandomain.PlanMonthly12, keywords: []string{"12食"}, result: Commission{Amount: 1000, PlanType: "12食定期プラン"}},
}

// CalculateCommission maps a purchase to its flat referral commission. Unrecognized
// purchases earn nothing and keep their label.
func CalculateCommission(planID, menuSetLabel string) Commission {
	for _, rule := range commissionRules {
		if rule.matches(planID, menuSetLabel) {
			return rule.result
		}
	}

	planType := menuSetLabel
	if strings.TrimSpace(planType) == "" {
		planType = unknownPlanType
	}
	return Commission{Amount: 0, PlanType: planType}
}
