// Package lock provides mutual exclusion over a business key, backed by
// the shared key-value store. The stored entry is the lock: there is no
// separate table, and lease expiry is the only recovery path for a
// crashed holder.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
	"github.com/storecraft/commerce-core/internal/infrastructure/kv"
)

const (
	keyPrefix    = "lock:"
	initialPoll  = 20 * time.Millisecond
	maxPoll      = 200 * time.Millisecond
	defaultLease = 30 * time.Second
)

// FailStrategy selects what WithLock does when acquisition fails.
type FailStrategy int

const (
	// FailWithError surfaces ErrLockHeld to the caller.
	FailWithError FailStrategy = iota
	// FailSkip silently skips the guarded operation.
	FailSkip
	// FailFallback invokes the caller-supplied fallback.
	FailFallback
)

// Options configures a guarded lock acquisition.
type Options struct {
	// Wait bounds how long TryLock polls for a contended lock before
	// giving up. Zero means a single attempt.
	Wait time.Duration
	// Lease bounds how long the holder may keep the lock; the key
	// expires after this and another holder may acquire it.
	Lease time.Duration
	// OnFail selects the failure behavior of WithLock.
	OnFail FailStrategy
	// Fallback runs instead of the guarded operation when OnFail is
	// FailFallback.
	Fallback func(ctx context.Context) error
}

// DistributedLock coordinates mutual exclusion across instances sharing
// one key-value store.
type DistributedLock struct {
	store  kv.Store
	logger zerolog.Logger
}

// New creates a DistributedLock on the given store.
func New(store kv.Store, logger zerolog.Logger) *DistributedLock {
	return &DistributedLock{store: store, logger: logger}
}

// TryLock attempts an atomic set-if-absent of holderID under bizKey with
// the lease as TTL. When the key is owned by someone else and wait is
// positive, it polls with bounded backoff until acquisition or until
// wait elapses, then reports false.
func (l *DistributedLock) TryLock(ctx context.Context, bizKey, holderID string, wait, lease time.Duration) (bool, error) {
	if lease <= 0 {
		lease = defaultLease
	}
	key := keyPrefix + bizKey

	deadline := time.Now().Add(wait)
	poll := initialPoll
	for {
		acquired, err := l.store.SetNX(ctx, key, holderID, lease)
		if err != nil {
			return false, fmt.Errorf("acquire lock %s: %w", bizKey, err)
		}
		if acquired {
			return true, nil
		}
		if wait <= 0 || !time.Now().Add(poll).Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(poll):
		}
		if poll < maxPoll {
			poll *= 2
		}
	}
}

// Unlock releases the lock only if holderID still owns it. Releasing a
// lock owned by someone else (lease expired, re-acquired) is a no-op.
func (l *DistributedLock) Unlock(ctx context.Context, bizKey, holderID string) error {
	released, err := l.store.CompareAndDelete(ctx, keyPrefix+bizKey, holderID)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", bizKey, err)
	}
	if !released {
		l.logger.Debug().Str("biz_key", bizKey).Msg("unlock skipped, lock not held by caller")
	}
	return nil
}

// WithLock runs fn while holding the lock for bizKey, generating a unique
// holder identity for the call. Acquisition failure is handled per
// opts.OnFail.
func (l *DistributedLock) WithLock(ctx context.Context, bizKey string, opts Options, fn func(ctx context.Context) error) error {
	holderID := uuid.New().String()

	acquired, err := l.TryLock(ctx, bizKey, holderID, opts.Wait, opts.Lease)
	if err != nil {
		return err
	}
	if !acquired {
		switch opts.OnFail {
		case FailSkip:
			l.logger.Debug().Str("biz_key", bizKey).Msg("lock contended, skipping guarded operation")
			return nil
		case FailFallback:
			if opts.Fallback != nil {
				return opts.Fallback(ctx)
			}
			return nil
		default:
			return fmt.Errorf("lock %s: %w", bizKey, domainErrors.ErrLockHeld)
		}
	}

	defer func() {
		if err := l.Unlock(ctx, bizKey, holderID); err != nil {
			l.logger.Warn().Err(err).Str("biz_key", bizKey).Msg("failed to release lock")
		}
	}()
	return fn(ctx)
}
