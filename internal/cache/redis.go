package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/futorumeshi/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedisClient returns nil when REDIS_ADDR is unset; callers fall back to in-process state.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Info("redis disabled, using in-process cache and limiter")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				// redis only backs caches and limits, so start degraded rather than fail
				log.Warn("redis ping failed", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

// RedisCache stores JSON-encoded values under a key prefix.
type RedisCache[V any] struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

func NewRedisCache[V any](client *redis.Client, prefix string, log *zap.Logger) *RedisCache[V] {
	return &RedisCache[V]{client: client, prefix: prefix, log: log}
}

func (c *RedisCache[V]) Get(ctx context.Context, key string) (V, bool) {
	var value V
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis cache get failed", zap.String("key", c.prefix+key), zap.Error(err))
		}
		return value, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		c.log.Warn("redis cache decode failed", zap.String("key", c.prefix+key), zap.Error(err))
		return value, false
	}
	return value, true
}

func (c *RedisCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("redis cache encode failed", zap.String("key", c.prefix+key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		c.log.Warn("redis cache set failed", zap.String("key", c.prefix+key), zap.Error(err))
	}
}

func (c *RedisCache[V]) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.log.Warn("redis cache delete failed", zap.String("key", c.prefix+key), zap.Error(err))
	}
}

// New picks the redis cache when a client is configured, the in-process cache otherwise,
// and a no-op cache when ttl is zero.
func New[V any](client *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) Cache[string, V] {
	switch {
	case ttl <= 0:
		return NoopCache[string, V]{}
	case client != nil:
		return NewRedisCache[V](client, prefix, log)
	default:
		return NewTTLCache[string, V]()
	}
}
