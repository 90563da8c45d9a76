package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateEndToEndScenario(t *testing.T) {
	orders := []ReferredOrder{
		{ReferralCode: "ABCD1234", MenuSet: "お試し6食", CreatedAt: time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)},
		{ReferralCode: "ABCD1234", MenuSet: "お試し6食", CreatedAt: time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC)},
		{ReferralCode: "", MenuSet: "お試し6食", CreatedAt: time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)},
	}
	events := []SubscriptionEvent{
		{SubscriptionID: "sub_1", ReferralCode: "ABCD1234", PlanID: "subscription-monthly-24", Kind: EventKindInitial, OccurredAt: time.Date(2024, time.May, 15, 0, 0, 0, 0, time.UTC)},
	}

	records := append(OrderUsageRecords(orders), SubscriptionUsageRecords(events)...)
	stats := Aggregate(records)

	require.Len(t, stats, 1)
	got := stats[0]
	assert.Equal(t, "ABCD1234", got.ReferralCode)
	assert.Equal(t, 3, got.TotalCount)
	assert.Equal(t, 3500, got.TotalCommission)

	require.Len(t, got.MonthlyStats, 2)
	assert.Equal(t, "2024-06", got.MonthlyStats[0].Month)
	assert.Equal(t, 1, got.MonthlyStats[0].Count)
	assert.Equal(t, 500, got.MonthlyStats[0].TotalCommission)
	assert.Equal(t, "2024-05", got.MonthlyStats[1].Month)
	assert.Equal(t, 2, got.MonthlyStats[1].Count)
	assert.Equal(t, 3000, got.MonthlyStats[1].TotalCommission)

	assert.Equal(t, map[string]ProductStats{
		"お試し6食プラン": {Count: 2, Commission: 1000},
		"24食定期プラン": {Count: 1, Commission: 2500},
	}, got.ByProduct)
	assert.Equal(t, map[string]ProductStats{
		"お試し6食プラン": {Count: 1, Commission: 500},
		"24食定期プラン": {Count: 1, Commission: 2500},
	}, got.MonthlyStats[1].ByProduct)
}

func TestSubscriptionRenewalsDoNotEarnCommission(t *testing.T) {
	start := time.Date(2024, time.January, 20, 0, 0, 0, 0, time.UTC)
	events := []SubscriptionEvent{
		{SubscriptionID: "sub_1", ReferralCode: "ABCD1234", PlanID: "subscription-monthly-12", Kind: EventKindInitial, OccurredAt: start},
	}
	for i := 1; i <= 3; i++ {
		events = append(events, SubscriptionEvent{
			SubscriptionID: "sub_1",
			ReferralCode:   "ABCD1234",
			PlanID:         "subscription-monthly-12",
			Kind:           EventKindRenewal,
			OccurredAt:     start.AddDate(0, i, 0),
		})
	}
	// a replayed initial event must not double count either
	events = append(events, events[0])

	records := SubscriptionUsageRecords(events)
	require.Len(t, records, 1)
	assert.Equal(t, 1000, records[0].Commission)
	assert.Equal(t, start, records[0].CreatedAt)
}

func TestOrderRecordsAlwaysUseTrialPlanID(t *testing.T) {
	records := OrderUsageRecords([]ReferredOrder{
		{ReferralCode: " ZZZZ ", MenuSet: "48食セット"},
		{ReferralCode: "ZZZZ", MenuSet: ""},
	})
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, "trial-6", record.PlanID)
		assert.Equal(t, "ZZZZ", record.ReferralCode)
	}
	// the trial id matches the first rule, so label text never escalates an order
	assert.Equal(t, 500, records[0].Commission)
	assert.Equal(t, "お試し6食プラン", records[1].PlanType)
}

func TestAggregateUnknownMonthSortsLexically(t *testing.T) {
	stats := Aggregate([]UsageRecord{
		{ReferralCode: "A", PlanType: "x", CreatedAt: time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC)},
		{ReferralCode: "A", PlanType: "x"},
		{ReferralCode: "A", PlanType: "x", CreatedAt: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.Len(t, stats, 1)

	months := make([]string, 0)
	for _, month := range stats[0].MonthlyStats {
		months = append(months, month.Month)
	}
	assert.Equal(t, []string{"unknown", "2024-01", "2023-12"}, months)
}

func TestAggregateMonthUsesUTC(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	stats := Aggregate([]UsageRecord{
		{ReferralCode: "A", PlanType: "x", CreatedAt: time.Date(2024, time.June, 1, 8, 0, 0, 0, jst)},
	})
	assert.Equal(t, "2024-05", stats[0].MonthlyStats[0].Month)
}

func TestAggregateKeepsFirstSeenOrder(t *testing.T) {
	records := []UsageRecord{
		{ReferralCode: "CCCC"},
		{ReferralCode: "AAAA"},
		{ReferralCode: "CCCC"},
		{ReferralCode: "BBBB"},
	}
	stats := Aggregate(records)
	require.Len(t, stats, 3)
	assert.Equal(t, "CCCC", stats[0].ReferralCode)
	assert.Equal(t, "AAAA", stats[1].ReferralCode)
	assert.Equal(t, "BBBB", stats[2].ReferralCode)

	assert.Equal(t, stats, Aggregate(records))
}

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate(nil)
	assert.NotNil(t, stats)
	assert.Empty(t, stats)
}

func TestAggregateCrossConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	codes := []string{"ABCD1234", "TANAKA01", "SATO2024", "YAMADA9"}
	labels := []string{"お試し6食", "12食セット", "24食セット", "48食セット", "特製", ""}
	planIDs := []string{"trial-6", "subscription-monthly-12", "subscription-monthly-24", "subscription-monthly-48", "plan-18", ""}

	for iteration := 0; iteration < 50; iteration++ {
		n := rng.Intn(60)
		records := make([]UsageRecord, 0, n)
		for i := 0; i < n; i++ {
			commission := CalculateCommission(planIDs[rng.Intn(len(planIDs))], labels[rng.Intn(len(labels))])
			var createdAt time.Time
			if rng.Intn(10) > 0 {
				createdAt = time.Date(2023+rng.Intn(2), time.Month(1+rng.Intn(12)), 1+rng.Intn(28), rng.Intn(24), 0, 0, 0, time.UTC)
			}
			records = append(records, UsageRecord{
				ReferralCode: codes[rng.Intn(len(codes))],
				PlanType:     commission.PlanType,
				CreatedAt:    createdAt,
				Commission:   commission.Amount,
			})
		}

		total := 0
		for _, stats := range Aggregate(records) {
			productCount, productCommission := 0, 0
			for _, product := range stats.ByProduct {
				productCount += product.Count
				productCommission += product.Commission
			}
			monthCount, monthCommission := 0, 0
			for i, month := range stats.MonthlyStats {
				monthCount += month.Count
				monthCommission += month.TotalCommission
				if i > 0 {
					assert.Greater(t, stats.MonthlyStats[i-1].Month, month.Month)
				}
			}

			assert.Equal(t, stats.TotalCount, productCount)
			assert.Equal(t, stats.TotalCount, monthCount)
			assert.Equal(t, stats.TotalCommission, productCommission)
			assert.Equal(t, stats.TotalCommission, monthCommission)
			total += stats.TotalCount
		}
		assert.Equal(t, n, total)
	}
}
