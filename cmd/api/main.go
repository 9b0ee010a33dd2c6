package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storecraft/commerce-core/internal/application/order"
	stockApp "github.com/storecraft/commerce-core/internal/application/stock"
	"github.com/storecraft/commerce-core/internal/bootstrap"
	"github.com/storecraft/commerce-core/internal/cache"
	"github.com/storecraft/commerce-core/internal/controller"
	"github.com/storecraft/commerce-core/internal/idempotency"
	"github.com/storecraft/commerce-core/internal/infrastructure/kv"
	infraRedis "github.com/storecraft/commerce-core/internal/infrastructure/redis"
	"github.com/storecraft/commerce-core/internal/lock"
	"github.com/storecraft/commerce-core/internal/ratelimit"
	"github.com/storecraft/commerce-core/internal/repository/postgres"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "commerce-api", "commerce")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	stockRepo := postgres.NewStockRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Shared-store primitives ---
	store := kv.NewRedisStore(app.Redis)
	locks := lock.New(store, app.Logger)
	guard := idempotency.NewGuard(store, app.Logger)
	limiter := ratelimit.NewLimiter(store)
	bus := cache.NewBus(app.Logger)
	registry := cache.NewRegistry(store, bus, app.Logger)

	// --- Invalidation stream consumer ---
	// The API reads epochs through the registry's local mirror, so it
	// must hear bumps performed by the worker and by other instances.
	// One consumer group per process: groups load-balance within
	// themselves, and every instance must see every bump.
	group := fmt.Sprintf("%s:api:%s", app.Config.Outbox.StreamGroup, app.Config.InstanceID)
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
	go func() {
		if err := infraRedis.ConsumeInvalidations(ctx, consumer, registry, app.Logger); err != nil {
			app.Logger.Error().Err(err).Msg("Invalidation consumer stopped")
		}
	}()

	// --- Application services ---
	ledger := stockApp.NewLedger(stockRepo, app.Config.Stock.CASMaxRetries, app.Logger, app.Metrics)
	stockService := stockApp.NewService(ledger, stockRepo, outboxRepo, txManager, app.Logger)
	orderService := order.NewSubmitService(locks, guard, limiter, ledger, outboxRepo, txManager, order.Config{
		LockWait:      app.Config.Lock.DefaultWait,
		LockLease:     app.Config.Lock.DefaultLease,
		InProgressTTL: app.Config.Idempotency.InProgressTTL,
		SuccessTTL:    app.Config.Idempotency.SuccessTTL,
		RateLimit:     app.Config.RateLimit.SubmitLimit,
		RateWindow:    app.Config.RateLimit.SubmitWindow,
	}, app.Logger, app.Metrics)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:          app.Pool,
		RedisClient:   app.Redis,
		StockService:  stockService,
		OrderService:  orderService,
		EpochRegistry: registry,
		OutboxWriter:  outboxRepo,
		Metrics:       app.Metrics,
		CORSConfig:    app.Config.Server.CORS,
		IPRateLimit:   app.Config.RateLimit.IPLimitPerMinute,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
