package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storecraft/commerce-core/internal/bootstrap"
	"github.com/storecraft/commerce-core/internal/cache"
	"github.com/storecraft/commerce-core/internal/dispatcher"
	"github.com/storecraft/commerce-core/internal/domain/outbox"
	"github.com/storecraft/commerce-core/internal/infrastructure/kv"
	infraRedis "github.com/storecraft/commerce-core/internal/infrastructure/redis"
	"github.com/storecraft/commerce-core/internal/repository/postgres"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "commerce-worker", "commerce_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Epoch registry ---
	store := kv.NewRedisStore(app.Redis)
	bus := cache.NewBus(app.Logger)
	registry := cache.NewRegistry(store, bus, app.Logger)

	// --- Outbox dispatcher ---
	streamProducer := infraRedis.NewStreamProducer(app.Redis)
	invalidationH := dispatcher.NewInvalidationHandler(registry, streamProducer, app.Logger, app.Metrics)

	disp := dispatcher.New(outboxRepo, txManager, dispatcher.Config{
		PollInterval: app.Config.Outbox.PollInterval,
		BatchSize:    app.Config.Outbox.BatchSize,
		MaxAttempts:  app.Config.Outbox.MaxAttempts,
	}, app.Logger, app.Metrics)
	disp.Register(dispatcher.EventTypeInvalidation, invalidationH.Handle)
	disp.Register("order.submitted", func(ctx context.Context, msg *outbox.Message) error {
		app.Logger.Info().Str("aggregate_id", msg.AggregateID).Msg("order event delivered")
		return nil
	})

	// --- Invalidation stream consumer (remote bumps) ---
	// One consumer group per process: groups load-balance within
	// themselves, and every instance must see every bump.
	group := fmt.Sprintf("%s:worker:%s", app.Config.Outbox.StreamGroup, app.Config.InstanceID)
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.InvalidationStream,
		group,
		app.Config.InstanceID,
		int64(app.Config.Outbox.BatchSize),
		5*time.Second,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group (may already exist)")
	}

	app.Logger.Info().
		Str("stream", infraRedis.InvalidationStream).
		Str("group", group).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Outbox dispatcher (polls outbox table, bumps epochs, publishes).
	g.Go(func() error {
		return disp.Run(gCtx)
	})

	// 2. Invalidation consumer (applies bumps from other instances).
	g.Go(func() error {
		return infraRedis.ConsumeInvalidations(gCtx, consumer, registry, app.Logger)
	})

	// 3. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
