// Package ratelimit implements fixed-window admission control on the
// shared key-value store. Counters are bound to wall-clock windows and
// reset implicitly when the window key expires.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
	"github.com/storecraft/commerce-core/internal/infrastructure/kv"
)

// OverLimitFunc decides the outcome of an over-limit call in Guard.
// The default rejects with ErrRateLimitExceeded; alternate strategies
// (queueing, delaying) plug in here.
type OverLimitFunc func(ctx context.Context, key string) error

// Limiter counts calls per key per fixed window.
type Limiter struct {
	store       kv.Store
	now         func() time.Time
	onOverLimit OverLimitFunc
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithOverLimit replaces the default reject strategy.
func WithOverLimit(fn OverLimitFunc) Option {
	return func(l *Limiter) { l.onOverLimit = fn }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a Limiter on the given store.
func NewLimiter(store kv.Store, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		now:   time.Now,
		onOverLimit: func(ctx context.Context, key string) error {
			return fmt.Errorf("%s: %w", key, domainErrors.ErrRateLimitExceeded)
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire admits the call while the current window's count stays
// within limit. The counter increment is atomic, so concurrent callers
// within one window cannot push the admitted count past limit by more
// than the single increment race.
func (l *Limiter) TryAcquire(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	if window <= 0 {
		window = time.Second
	}
	now := l.now()
	windowStart := now.Truncate(window)
	counterKey := fmt.Sprintf("rate:%s:%d", key, windowStart.Unix())

	count, err := l.store.Incr(ctx, counterKey)
	if err != nil {
		return false, fmt.Errorf("rate counter %s: %w", key, err)
	}
	if count == 1 {
		// First hit of the window: expire at the window boundary.
		ttl := windowStart.Add(window).Sub(now)
		if ttl <= 0 {
			ttl = window
		}
		if _, err := l.store.Expire(ctx, counterKey, ttl); err != nil {
			return false, fmt.Errorf("rate counter expiry %s: %w", key, err)
		}
	}
	return count <= limit, nil
}

// Guard admits the call or applies the over-limit strategy.
func (l *Limiter) Guard(ctx context.Context, key string, limit int64, window time.Duration) error {
	admitted, err := l.TryAcquire(ctx, key, limit, window)
	if err != nil {
		return err
	}
	if !admitted {
		return l.onOverLimit(ctx, key)
	}
	return nil
}
