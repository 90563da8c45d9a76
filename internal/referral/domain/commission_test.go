package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCommission(t *testing.T) {
	cases := []struct {
		name   string
		planID string
		label  string
		want   Commission
	}{
		{name: "trial id", planID: "trial-6", want: Commission{500, "お試し6食プラン"}},
		{name: "trial label", planID: "plan-6", label: "お試しセット", want: Commission{500, "お試し6食プラン"}},
		{name: "six meal label", label: "ふとるめし6食", want: Commission{500, "お試し6食プラン"}},
		{name: "monthly 48", planID: "subscription-monthly-48", want: Commission{4000, "48食定期プラン"}},
		{name: "monthly 24", planID: "subscription-monthly-24", want: Commission{2500, "24食定期プラン"}},
		{name: "monthly 12", planID: "subscription-monthly-12", want: Commission{1000, "12食定期プラン"}},
		{name: "label 24", label: "定期24食", want: Commission{2500, "24食定期プラン"}},
		{name: "one shot 18 has no tier", planID: "plan-18", label: "18食セット", want: Commission{0, "18食セット"}},
		{name: "unknown keeps label", planID: "unknown-plan", label: "特製カレー", want: Commission{0, "特製カレー"}},
		{name: "unknown empty label", planID: "unknown-plan", label: "", want: Commission{0, "不明"}},
		{name: "unknown blank label", planID: "", label: "  ", want: Commission{0, "不明"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalculateCommission(tc.planID, tc.label))
		})
	}
}

func TestCommissionRuleOrderBeatsGenerosity(t *testing.T) {
	// the 48 rule is checked before the 12 rule, so the label wins over the lower-tier id
	got := CalculateCommission("subscription-monthly-12", "48食セット")
	assert.Equal(t, Commission{Amount: 4000, PlanType: "48食定期プラン"}, got)

	// the trial rule is checked first, so a trial label pulls a 48 plan down to 500
	got = CalculateCommission("subscription-monthly-48", "お試し6食")
	assert.Equal(t, Commission{Amount: 500, PlanType: "お試し6食プラン"}, got)

	// an exact id for a higher tier wins over a lower-tier label
	got = CalculateCommission("subscription-monthly-24", "12食セット")
	assert.Equal(t, Commission{Amount: 2500, PlanType: "24食定期プラン"}, got)
}

func TestCalculateCommissionDefault(t *testing.T) {
	assert.Equal(t, Commission{Amount: 0, PlanType: "不明"}, CalculateCommission("unknown-plan", ""))
}
