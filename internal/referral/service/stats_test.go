package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/futorumeshi/internal/cache"
	"github.com/smallbiznis/futorumeshi/internal/config"
	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
	"github.com/smallbiznis/futorumeshi/internal/referral/domain"
	"github.com/smallbiznis/futorumeshi/internal/referral/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUsageSource struct {
	orders    []domain.ReferredOrder
	events    []domain.SubscriptionEvent
	ordersErr error
	calls     atomic.Int32
	lastCode  atomic.Value
}

func (f *fakeUsageSource) ReferredOrders(ctx context.Context, code string) ([]domain.ReferredOrder, error) {
	f.calls.Add(1)
	f.lastCode.Store(code)
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	return f.orders, nil
}

func (f *fakeUsageSource) SubscriptionEvents(ctx context.Context, code string) ([]domain.SubscriptionEvent, error) {
	return f.events, nil
}

func newStats(source domain.UsageSource, c cache.Cache[string, []domain.ReferrerStats]) domain.StatsService {
	return service.NewStatsService(service.StatsParams{
		Log:        zap.NewNop(),
		Source:     source,
		Config:     config.Config{ReferralStatsCacheTTL: time.Minute},
		StatsCache: c,
	})
}

func TestStatsCombinesOrdersAndInitialContracts(t *testing.T) {
	may := time.Date(2024, time.May, 3, 10, 0, 0, 0, time.UTC)
	june := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	source := &fakeUsageSource{
		orders: []domain.ReferredOrder{
			{ReferralCode: "GYM01", MenuSet: "お試し6食セット", CreatedAt: may},
		},
		events: []domain.SubscriptionEvent{
			{SubscriptionID: "1", ReferralCode: "GYM01", PlanID: plandomain.PlanMonthly48, Kind: domain.EventKindInitial, OccurredAt: june},
			{SubscriptionID: "1", ReferralCode: "GYM01", PlanID: plandomain.PlanMonthly48, Kind: domain.EventKindRenewal, OccurredAt: june.AddDate(0, 1, 0)},
			{SubscriptionID: "2", ReferralCode: "COACH1", PlanID: plandomain.PlanMonthly12, Kind: domain.EventKindInitial, OccurredAt: june},
		},
	}

	stats, err := newStats(source, nil).Stats(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, stats, 2)

	gym := stats[0]
	assert.Equal(t, "GYM01", gym.ReferralCode)
	assert.Equal(t, 2, gym.TotalCount)
	assert.Equal(t, 4500, gym.TotalCommission)
	require.Len(t, gym.MonthlyStats, 2)
	assert.Equal(t, "2024-06", gym.MonthlyStats[0].Month)

	assert.Equal(t, "COACH1", stats[1].ReferralCode)
	assert.Equal(t, 1000, stats[1].TotalCommission)
}

func TestStatsNormalizesCodeFilter(t *testing.T) {
	source := &fakeUsageSource{}
	_, err := newStats(source, nil).Stats(context.Background(), " gym01 ")
	require.NoError(t, err)
	assert.Equal(t, "GYM01", source.lastCode.Load())

	_, err = newStats(source, nil).Stats(context.Background(), "x!")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestStatsDegradesToEmptyOnFetchError(t *testing.T) {
	source := &fakeUsageSource{ordersErr: errors.New("db down")}

	stats, err := newStats(source, nil).Stats(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, stats)
	assert.Empty(t, stats)
}

func TestStatsServesFromCache(t *testing.T) {
	source := &fakeUsageSource{
		orders: []domain.ReferredOrder{{ReferralCode: "GYM01", MenuSet: "6食", CreatedAt: time.Now()}},
	}
	svc := newStats(source, cache.NewTTLCache[string, []domain.ReferrerStats]())

	first, err := svc.Stats(context.Background(), "GYM01")
	require.NoError(t, err)
	second, err := svc.Stats(context.Background(), "GYM01")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestStatsDoesNotCacheDegradedResult(t *testing.T) {
	source := &fakeUsageSource{ordersErr: errors.New("timeout")}
	svc := newStats(source, cache.NewTTLCache[string, []domain.ReferrerStats]())

	_, _ = svc.Stats(context.Background(), "")
	source.ordersErr = nil
	source.orders = []domain.ReferredOrder{{ReferralCode: "GYM01", CreatedAt: time.Now()}}

	stats, err := svc.Stats(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, stats, 1)
}
