package kv

import (
	"context"
	"time"
)

// Store is the shared key-value collaborator behind the concurrency
// primitives. Every method is a single atomic operation against the
// shared store; implementations must not split one call into multiple
// non-atomic round trips.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with the given TTL, overwriting any
	// previous value. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores value under key only if the key does not exist.
	// Returns true if the value was stored.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete removes key only if its current value equals value.
	// Returns true if the key was removed.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// Incr atomically increments the integer stored at key, creating it
	// at 1 if absent, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the TTL on an existing key. Returns false if the key
	// does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Delete removes key unconditionally.
	Delete(ctx context.Context, key string) error
}
