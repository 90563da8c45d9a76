package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a TTL cache. Implementations treat backend failures as misses.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, key K)
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache stores values in-memory with per-entry TTLs.
type TTLCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]cacheEntry[V]
	now   func() time.Time
}

func NewTTLCache[K comparable, V any]() *TTLCache[K, V] {
	return &TTLCache[K, V]{items: make(map[K]cacheEntry[V]), now: time.Now}
}

// NewTTLCacheWithClock is used by tests that need to move time forward.
func NewTTLCacheWithClock[K comparable, V any](now func() time.Time) *TTLCache[K, V] {
	return &TTLCache[K, V]{items: make(map[K]cacheEntry[V]), now: now}
}

func (c *TTLCache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.Delete(ctx, key)
		return zero, false
	}
	return entry.value, true
}

func (c *TTLCache[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	if c == nil {
		return
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = cacheEntry[V]{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Delete(ctx context.Context, key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// NoopCache always misses and ignores writes. Used when caching is disabled by a zero TTL.
type NoopCache[K comparable, V any] struct{}

func (NoopCache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zero V
	return zero, false
}

func (NoopCache[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {}

func (NoopCache[K, V]) Delete(ctx context.Context, key K) {}
