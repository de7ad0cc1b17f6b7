// Package ratelimit throttles gateway requests with a fixed-size sliding
// window per key (IP or email). The default implementation runs
// read-modify-write against the recipient store, which makes it
// best-effort under concurrency; RedisLimiter in redis.go is the exact
// variant for deployments that need atomic counting.
package ratelimit

import (
	"context"
	"time"

	"github.com/lafabrique/excerpt-gateway/internal/domain"
	"github.com/lafabrique/excerpt-gateway/internal/store"
)

const (
	// DefaultWindow and DefaultLimit match the production posture:
	// 10 requests per IP per 5 minutes.
	DefaultWindow = 5 * time.Minute
	DefaultLimit  = 10
)

// Limiter decides whether a request keyed by IP or email may proceed.
type Limiter interface {
	// Allow records one request for key and reports whether it is within
	// the limit.
	Allow(ctx context.Context, key string) (bool, error)
}

// StoreLimiter counts requests in RateCounter records. The increment is
// persisted before the limit check, so rejected attempts keep pushing the
// counter up and the key stays blocked until the window rolls over.
type StoreLimiter struct {
	store  store.Store
	window time.Duration
	limit  int
	now    func() time.Time
}

// NewStoreLimiter builds a limiter over the given store. Zero window/limit
// fall back to the defaults.
func NewStoreLimiter(s store.Store, window time.Duration, limit int) *StoreLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &StoreLimiter{store: s, window: window, limit: limit, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (l *StoreLimiter) SetClock(now func() time.Time) { l.now = now }

// Window returns the configured window length.
func (l *StoreLimiter) Window() time.Duration { return l.window }

// Allow reads the counter for key, resets it when the window has elapsed,
// otherwise increments it, then checks the limit. Concurrent callers can
// both observe the same count; that slack is accepted (best-effort
// limiter).
func (l *StoreLimiter) Allow(ctx context.Context, key string) (bool, error) {
	nowMs := l.now().UnixMilli()
	windowMs := l.window.Milliseconds()

	c, err := l.store.GetCounter(ctx, key)
	if err != nil {
		return false, err
	}

	if c == nil || nowMs-c.WindowStartMs >= windowMs {
		err := l.store.PutCounter(ctx, &domain.RateCounter{
			Key:           key,
			Count:         1,
			WindowStartMs: nowMs,
		})
		return err == nil, err
	}

	c.Count++
	if err := l.store.PutCounter(ctx, c); err != nil {
		return false, err
	}
	return c.Count <= l.limit, nil
}
