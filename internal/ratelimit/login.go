package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/futorumeshi/internal/clock"
	"go.uber.org/zap"
)

const (
	LoginAttemptLimit  = 5
	LoginAttemptWindow = 10 * time.Minute

	loginKeyPrefix = "futorumeshi:ratelimit:login:"
)

// LoginLimiter throttles admin login attempts per client address.
// It prefers the shared redis bucket and falls back to a local window when redis is absent or failing.
type LoginLimiter struct {
	bucket *TokenBucket
	local  *windowLimiter
	log    *zap.Logger
}

func NewLoginLimiter(client *redis.Client, clk clock.Clock, log *zap.Logger) *LoginLimiter {
	return &LoginLimiter{
		bucket: NewTokenBucket(client),
		local:  newWindowLimiter(LoginAttemptLimit, LoginAttemptWindow, clk),
		log:    log.Named("ratelimit.login"),
	}
}

// Allow consumes one attempt for key and reports whether it is permitted along with a retry hint.
func (l *LoginLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}

	if l.bucket != nil {
		rate := float64(LoginAttemptLimit) / LoginAttemptWindow.Seconds()
		res, err := l.bucket.Allow(ctx, loginKeyPrefix+key, rate, LoginAttemptLimit)
		if err == nil {
			return res.Allowed, res.RetryAfter
		}
		l.log.Warn("redis login limiter unavailable, using local window", zap.Error(err))
	}

	return l.local.Allow(key)
}

type windowLimiter struct {
	limit  int
	window time.Duration
	clock  clock.Clock

	mu    sync.Mutex
	items map[string]*windowEntry
}

type windowEntry struct {
	windowStart time.Time
	count       int
}

func newWindowLimiter(limit int, window time.Duration, clk clock.Clock) *windowLimiter {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &windowLimiter{
		limit:  limit,
		window: window,
		clock:  clk,
		items:  make(map[string]*windowEntry),
	}
}

func (w *windowLimiter) Allow(key string) (bool, time.Duration) {
	now := w.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := w.items[key]
	if entry == nil || now.Sub(entry.windowStart) >= w.window {
		entry = &windowEntry{windowStart: now}
		w.items[key] = entry
		w.sweep(now)
	}

	if entry.count >= w.limit {
		return false, entry.windowStart.Add(w.window).Sub(now)
	}
	entry.count++
	return true, 0
}

// sweep drops expired windows so the map does not grow with every address ever seen.
func (w *windowLimiter) sweep(now time.Time) {
	for key, entry := range w.items {
		if now.Sub(entry.windowStart) >= w.window {
			delete(w.items, key)
		}
	}
}
