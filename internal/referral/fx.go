package referral

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/futorumeshi/internal/cache"
	"github.com/smallbiznis/futorumeshi/internal/config"
	"github.com/smallbiznis/futorumeshi/internal/referral/domain"
	"github.com/smallbiznis/futorumeshi/internal/referral/service"
	"github.com/smallbiznis/futorumeshi/internal/referral/usage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const statsCachePrefix = "futorumeshi:referral:stats:"

var Module = fx.Module("referral.service",
	fx.Provide(provideStatsCache),
	fx.Provide(usage.New),
	fx.Provide(service.New),
	fx.Provide(service.NewStatsService),
)

func provideStatsCache(client *redis.Client, cfg config.Config, log *zap.Logger) cache.Cache[string, []domain.ReferrerStats] {
	return cache.New[[]domain.ReferrerStats](client, statsCachePrefix, cfg.ReferralStatsCacheTTL, log)
}
