// Package cache implements epoch-based invalidation shared across
// instances. Epochs are per-(tenant, namespace) monotonic counters held
// in the shared key-value store and embedded in cache keys, so bumping
// one invalidates an unbounded set of keys without enumerating them.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/storecraft/commerce-core/internal/infrastructure/kv"
)

const initialEpoch int64 = 1

// Registry provides epoch reads and bumps. The shared store is the
// source of truth; a local mirror serves fast reads and only ever moves
// forward, guarding against out-of-order delivery of bump events.
type Registry struct {
	store  kv.Store
	bus    *Bus
	logger zerolog.Logger

	mu    sync.RWMutex
	local map[string]int64
}

// NewRegistry creates a Registry publishing bumps on bus.
func NewRegistry(store kv.Store, bus *Bus, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		bus:    bus,
		logger: logger,
		local:  make(map[string]int64),
	}
}

func epochKey(tenantID, namespace string) string {
	return fmt.Sprintf("epoch:%s:%s", tenantID, namespace)
}

// CurrentEpoch returns the epoch for (tenantID, namespace), creating it
// lazily at 1 on first read. Values are always >= 1.
func (r *Registry) CurrentEpoch(ctx context.Context, tenantID, namespace string) (int64, error) {
	composite := epochKey(tenantID, namespace)

	r.mu.RLock()
	cached, ok := r.local[composite]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	epoch, err := r.readOrInit(ctx, composite)
	if err != nil {
		return 0, err
	}
	r.advanceLocal(composite, epoch)
	return epoch, nil
}

// BumpEpoch atomically increments the shared counter, moves the local
// mirror forward, and broadcasts an invalidation event to every local
// subscriber. Returns the new epoch.
func (r *Registry) BumpEpoch(ctx context.Context, tenantID, namespace string) (int64, error) {
	composite := epochKey(tenantID, namespace)
	epoch, err := r.store.Incr(ctx, composite)
	if err != nil {
		return 0, fmt.Errorf("bump epoch %s: %w", composite, err)
	}
	if epoch == initialEpoch {
		// The counter did not exist, so this increment only reached the
		// lazy-init value and readers at epoch 1 would see nothing
		// change. Increment once more so the bump is observable.
		epoch, err = r.store.Incr(ctx, composite)
		if err != nil {
			return 0, fmt.Errorf("bump epoch %s: %w", composite, err)
		}
	}
	r.advanceLocal(composite, epoch)

	evt := NewInvalidationEvent(tenantID, "namespace", namespace, epoch)
	r.bus.Broadcast(ctx, evt)
	return epoch, nil
}

// UpdateLocalEpoch moves the local mirror forward to epoch. Lower values
// are ignored so stale or reordered bump events never regress a mirror.
func (r *Registry) UpdateLocalEpoch(tenantID, namespace string, epoch int64) {
	if epoch <= 0 {
		return
	}
	r.advanceLocal(epochKey(tenantID, namespace), epoch)
}

// ApplyRemote applies a bump produced by another instance: the local
// mirror moves forward and local subscribers hear the event. The shared
// counter is untouched since the remote already incremented it.
func (r *Registry) ApplyRemote(ctx context.Context, evt InvalidationEvent) {
	if evt.Epoch <= 0 {
		return
	}
	r.advanceLocal(epochKey(evt.TenantID, evt.Namespace), evt.Epoch)
	r.bus.Broadcast(ctx, evt)
}

// Key builds a cache key with the current epoch embedded, so a bump
// orphans every key minted under the previous epoch.
func (r *Registry) Key(ctx context.Context, tenantID, namespace, suffix string) (string, error) {
	epoch, err := r.CurrentEpoch(ctx, tenantID, namespace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("cache:%s:%s:e%d:%s", tenantID, namespace, epoch, suffix), nil
}

func (r *Registry) advanceLocal(composite string, epoch int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch > r.local[composite] {
		r.local[composite] = epoch
	}
}

func (r *Registry) readOrInit(ctx context.Context, composite string) (int64, error) {
	val, found, err := r.store.Get(ctx, composite)
	if err != nil {
		return 0, fmt.Errorf("read epoch %s: %w", composite, err)
	}
	if found {
		return parseEpoch(val), nil
	}

	created, err := r.store.SetNX(ctx, composite, strconv.FormatInt(initialEpoch, 10), 0)
	if err != nil {
		return 0, fmt.Errorf("init epoch %s: %w", composite, err)
	}
	if created {
		return initialEpoch, nil
	}
	// Lost the init race; the concurrent writer's value wins.
	val, found, err = r.store.Get(ctx, composite)
	if err != nil {
		return 0, fmt.Errorf("reread epoch %s: %w", composite, err)
	}
	if !found {
		return initialEpoch, nil
	}
	return parseEpoch(val), nil
}

func parseEpoch(val string) int64 {
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil || parsed < initialEpoch {
		return initialEpoch
	}
	return parsed
}
