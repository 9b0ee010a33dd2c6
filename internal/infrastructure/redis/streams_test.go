package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storecraft/commerce-core/internal/cache"
	"github.com/storecraft/commerce-core/internal/infrastructure/kv"
)

// fakeSource feeds canned batches to the consume loop and cancels the
// context once they run out, so the loop exits deterministically.
type fakeSource struct {
	batches [][]redis.XStream
	ackErrs map[string]error
	acked   []string
	cancel  context.CancelFunc
}

func (f *fakeSource) Read(context.Context) ([]redis.XStream, error) {
	if len(f.batches) == 0 {
		f.cancel()
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeSource) Ack(_ context.Context, messageID string) error {
	f.acked = append(f.acked, messageID)
	return f.ackErrs[messageID]
}

func invalidationXMessage(t *testing.T, id string, evt cache.InvalidationEvent) redis.XMessage {
	t.Helper()
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	return redis.XMessage{ID: id, Values: map[string]any{"payload": string(payload)}}
}

func newEpochRegistry() *cache.Registry {
	return cache.NewRegistry(kv.NewMemoryStore(), cache.NewBus(zerolog.Nop()), zerolog.Nop())
}

func TestConsumeInvalidations_AppliesAndAcks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evt := cache.NewInvalidationEvent("t1", "namespace", "availability", 4)
	src := &fakeSource{
		batches: [][]redis.XStream{{
			{Stream: InvalidationStream, Messages: []redis.XMessage{invalidationXMessage(t, "1-0", evt)}},
		}},
		cancel: cancel,
	}
	registry := newEpochRegistry()

	err := ConsumeInvalidations(ctx, src, registry, zerolog.Nop())
	require.NoError(t, err)

	epoch, err := registry.CurrentEpoch(context.Background(), "t1", "availability")
	require.NoError(t, err)
	assert.Equal(t, int64(4), epoch, "remote bump must reach the local mirror")
	assert.Equal(t, []string{"1-0"}, src.acked)
}

func TestConsumeInvalidations_BadPayloadAckedAndSkipped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		batches: [][]redis.XStream{{
			{Stream: InvalidationStream, Messages: []redis.XMessage{
				{ID: "1-0", Values: map[string]any{"payload": "{not json"}},
			}},
		}},
		cancel: cancel,
	}
	registry := newEpochRegistry()

	err := ConsumeInvalidations(ctx, src, registry, zerolog.Nop())
	require.NoError(t, err)

	// Redelivery cannot fix a broken payload, so it is acked and dropped.
	assert.Equal(t, []string{"1-0"}, src.acked)
	epoch, err := registry.CurrentEpoch(context.Background(), "t1", "availability")
	require.NoError(t, err)
	assert.Equal(t, int64(1), epoch)
}

func TestConsumeInvalidations_AckFailureDoesNotStopProcessing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := cache.NewInvalidationEvent("t1", "namespace", "availability", 3)
	second := cache.NewInvalidationEvent("t1", "namespace", "availability", 5)
	src := &fakeSource{
		batches: [][]redis.XStream{{
			{Stream: InvalidationStream, Messages: []redis.XMessage{
				invalidationXMessage(t, "1-0", first),
				invalidationXMessage(t, "2-0", second),
			}},
		}},
		ackErrs: map[string]error{"1-0": errors.New("connection reset")},
		cancel:  cancel,
	}
	registry := newEpochRegistry()

	err := ConsumeInvalidations(ctx, src, registry, zerolog.Nop())
	require.NoError(t, err)

	epoch, err := registry.CurrentEpoch(context.Background(), "t1", "availability")
	require.NoError(t, err)
	assert.Equal(t, int64(5), epoch, "later bumps must still apply after a failed ack")
	assert.Equal(t, []string{"1-0", "2-0"}, src.acked)
}

func TestDecodeInvalidation(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		evt := cache.NewInvalidationEvent("t1", "store", "availability", 7)
		decoded, err := DecodeInvalidation(invalidationXMessage(t, "1-0", evt))
		require.NoError(t, err)
		assert.Equal(t, evt.TenantID, decoded.TenantID)
		assert.Equal(t, evt.Namespace, decoded.Namespace)
		assert.Equal(t, evt.Epoch, decoded.Epoch)
	})

	t.Run("missing payload", func(t *testing.T) {
		_, err := DecodeInvalidation(redis.XMessage{ID: "1-0", Values: map[string]any{}})
		assert.Error(t, err)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := DecodeInvalidation(redis.XMessage{ID: "1-0", Values: map[string]any{"payload": "{oops"}})
		assert.Error(t, err)
	})
}
