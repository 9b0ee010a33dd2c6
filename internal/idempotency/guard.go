// Package idempotency deduplicates repeated operations by a caller
// supplied token. The scene tag is part of the key so the same business
// key guarded in two contexts never collides.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
	"github.com/storecraft/commerce-core/internal/infrastructure/kv"
)

const (
	stateInProgress = "IN_PROGRESS"
	stateSucceeded  = "SUCCEEDED"
)

// Guard is the idempotent execution gate. At most one IN_PROGRESS or
// SUCCEEDED record exists per (bizKey, scene) at any instant.
type Guard struct {
	store  kv.Store
	logger zerolog.Logger
}

// NewGuard creates a Guard on the given store.
func NewGuard(store kv.Store, logger zerolog.Logger) *Guard {
	return &Guard{store: store, logger: logger}
}

func key(bizKey, scene string) string {
	return fmt.Sprintf("idem:%s:%s", scene, bizKey)
}

// TryEnter atomically creates an IN_PROGRESS record if none exists.
// Returns true on first entry; false when a live record (in progress or
// succeeded) already holds the key.
func (g *Guard) TryEnter(ctx context.Context, bizKey, scene string, ttl time.Duration) (bool, error) {
	created, err := g.store.SetNX(ctx, key(bizKey, scene), stateInProgress, ttl)
	if err != nil {
		return false, fmt.Errorf("idempotency enter %s/%s: %w", scene, bizKey, err)
	}
	return created, nil
}

// OnSuccess converts the record to SUCCEEDED with its own TTL so a
// completed operation keeps rejecting replays until the TTL lapses.
func (g *Guard) OnSuccess(ctx context.Context, bizKey, scene string, ttl time.Duration) error {
	if err := g.store.Set(ctx, key(bizKey, scene), stateSucceeded, ttl); err != nil {
		return fmt.Errorf("idempotency mark success %s/%s: %w", scene, bizKey, err)
	}
	return nil
}

// Clear removes the record so the caller may retry after a failure.
// Failures must not cement the IN_PROGRESS marker.
func (g *Guard) Clear(ctx context.Context, bizKey, scene string) error {
	if err := g.store.Delete(ctx, key(bizKey, scene)); err != nil {
		return fmt.Errorf("idempotency clear %s/%s: %w", scene, bizKey, err)
	}
	return nil
}

// Execute wraps fn with the guard: first entry runs fn, duplicates get
// ErrDuplicateOperation. A failed fn clears the record; a successful one
// is remembered for successTTL.
func (g *Guard) Execute(ctx context.Context, bizKey, scene string, ttl, successTTL time.Duration, fn func(ctx context.Context) error) error {
	entered, err := g.TryEnter(ctx, bizKey, scene, ttl)
	if err != nil {
		return err
	}
	if !entered {
		return fmt.Errorf("%s/%s: %w", scene, bizKey, domainErrors.ErrDuplicateOperation)
	}

	if err := fn(ctx); err != nil {
		if clearErr := g.Clear(ctx, bizKey, scene); clearErr != nil {
			g.logger.Warn().Err(clearErr).Str("scene", scene).Str("biz_key", bizKey).
				Msg("failed to clear idempotency record after operation failure")
		}
		return err
	}
	return g.OnSuccess(ctx, bizKey, scene, successTTL)
}
