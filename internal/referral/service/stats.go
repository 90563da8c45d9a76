package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/futorumeshi/internal/cache"
	"github.com/smallbiznis/futorumeshi/internal/config"
	"github.com/smallbiznis/futorumeshi/internal/observability/metrics"
	"github.com/smallbiznis/futorumeshi/internal/observability/tracing"
	"github.com/smallbiznis/futorumeshi/internal/referral/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	statsCacheAllKey = "*"

	statsScopeAll    = "all"
	statsScopeSingle = "single"
)

var errNoUsageSource = errors.New("referral usage source not configured")

type StatsParams struct {
	fx.In

	Log        *zap.Logger
	Source     domain.UsageSource
	Config     config.Config
	StatsCache cache.Cache[string, []domain.ReferrerStats] `optional:"true"`
	Metrics    *metrics.Metrics                            `optional:"true"`
}

type StatsService struct {
	log      *zap.Logger
	source   domain.UsageSource
	cache    cache.Cache[string, []domain.ReferrerStats]
	cacheTTL time.Duration
	metrics  *metrics.Metrics
}

func NewStatsService(p StatsParams) domain.StatsService {
	statsCache := p.StatsCache
	if statsCache == nil {
		statsCache = cache.NoopCache[string, []domain.ReferrerStats]{}
	}
	return &StatsService{
		log:      p.Log.Named("referral.stats"),
		source:   p.Source,
		cache:    statsCache,
		cacheTTL: p.Config.ReferralStatsCacheTTL,
		metrics:  p.Metrics,
	}
}

// Stats never fails on a fetch error: the dashboard shows an empty list and the failure is logged.
func (s *StatsService) Stats(ctx context.Context, code string) ([]domain.ReferrerStats, error) {
	scope := statsScopeAll
	filter := ""
	if trimmed := strings.TrimSpace(code); trimmed != "" {
		normalized, ok := domain.NormalizeCode(trimmed)
		if !ok {
			return nil, domain.ErrInvalidCode
		}
		scope = statsScopeSingle
		filter = normalized
	}

	key := statsCacheKey(filter)
	if cached, ok := s.cache.Get(ctx, key); ok {
		s.metrics.RecordReferralStats(ctx, scope, "hit")
		return cached, nil
	}

	ctx, span := tracing.Start(ctx, "referral.stats", attribute.String("referral.scope", scope))
	defer span.End()

	records, err := s.fetchUsage(ctx, filter)
	if err != nil {
		s.log.Error("referral usage fetch failed",
			zap.String("scope", scope),
			zap.String("referral_code", filter),
			zap.Error(err),
		)
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "usage fetch failed")
		s.metrics.RecordReferralStats(ctx, scope, "degraded")
		return []domain.ReferrerStats{}, nil
	}

	stats := domain.Aggregate(records)
	s.cache.Set(ctx, key, stats, s.cacheTTL)
	s.metrics.RecordReferralStats(ctx, scope, "miss")
	return stats, nil
}

func (s *StatsService) fetchUsage(ctx context.Context, code string) ([]domain.UsageRecord, error) {
	if s.source == nil {
		return nil, errNoUsageSource
	}

	var (
		orders []domain.ReferredOrder
		events []domain.SubscriptionEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = s.source.ReferredOrders(gctx, code)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = s.source.SubscriptionEvents(gctx, code)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := domain.OrderUsageRecords(orders)
	records = append(records, domain.SubscriptionUsageRecords(events)...)
	return records, nil
}

func statsCacheKey(code string) string {
	if code == "" {
		return statsCacheAllKey
	}
	return code
}
