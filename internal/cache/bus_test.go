package cache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/storecraft/commerce-core/internal/cache"
)

func TestBroadcast_DeliversInRegistrationOrder(t *testing.T) {
	bus := cache.NewBus(zerolog.Nop())

	var got []string
	bus.Subscribe(func(ctx context.Context, evt cache.InvalidationEvent) error {
		got = append(got, "first")
		return nil
	})
	bus.Subscribe(func(ctx context.Context, evt cache.InvalidationEvent) error {
		got = append(got, "second")
		return nil
	})

	bus.Broadcast(context.Background(), cache.NewInvalidationEvent("t1", "store", "availability", 2))

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("expected [first second], got %v", got)
	}
}

func TestBroadcast_FailingSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := cache.NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(func(ctx context.Context, evt cache.InvalidationEvent) error {
		return errors.New("boom")
	})
	bus.Subscribe(func(ctx context.Context, evt cache.InvalidationEvent) error {
		delivered = true
		return nil
	})

	bus.Broadcast(context.Background(), cache.NewInvalidationEvent("t1", "store", "availability", 2))

	if !delivered {
		t.Fatal("expected later subscriber to receive the event")
	}
}

func TestBroadcast_PanickingSubscriberIsRecovered(t *testing.T) {
	bus := cache.NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(func(ctx context.Context, evt cache.InvalidationEvent) error {
		panic("boom")
	})
	bus.Subscribe(func(ctx context.Context, evt cache.InvalidationEvent) error {
		delivered = true
		return nil
	})

	bus.Broadcast(context.Background(), cache.NewInvalidationEvent("t1", "store", "availability", 2))

	if !delivered {
		t.Fatal("expected delivery to continue past a panicking subscriber")
	}
}

func TestBroadcast_CarriesEventFields(t *testing.T) {
	bus := cache.NewBus(zerolog.Nop())

	var got cache.InvalidationEvent
	bus.Subscribe(func(ctx context.Context, evt cache.InvalidationEvent) error {
		got = evt
		return nil
	})

	evt := cache.NewInvalidationEvent("t1", "store", "availability", 7)
	bus.Broadcast(context.Background(), evt)

	if got.TenantID != "t1" || got.Namespace != "availability" || got.Epoch != 7 {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.EventID != evt.EventID {
		t.Fatal("event must arrive unmodified")
	}
}
