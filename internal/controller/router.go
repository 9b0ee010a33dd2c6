package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/storecraft/commerce-core/internal/application/order"
	stockApp "github.com/storecraft/commerce-core/internal/application/stock"
	"github.com/storecraft/commerce-core/internal/cache"
	"github.com/storecraft/commerce-core/internal/infrastructure/config"
	"github.com/storecraft/commerce-core/internal/infrastructure/observability"
	customMW "github.com/storecraft/commerce-core/internal/middleware"
)

type RouterDeps struct {
	Pool          *pgxpool.Pool
	RedisClient   *redis.Client
	StockService  *stockApp.Service
	OrderService  *order.SubmitService
	EpochRegistry *cache.Registry
	OutboxWriter  OutboxWriter
	Metrics       *observability.Metrics
	CORSConfig    config.CORSConfig
	IPRateLimit   int
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))
	if deps.IPRateLimit > 0 {
		r.Use(customMW.RateLimit(deps.IPRateLimit))
	}

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	stockH := NewStockController(deps.StockService)
	orderH := NewOrderController(deps.OrderService)
	cacheH := NewCacheController(deps.EpochRegistry, deps.OutboxWriter)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/tenants/{tenant}", func(r chi.Router) {
		// Stock
		r.Get("/stock", stockH.Get)
		r.Post("/stock", stockH.Create)
		r.Post("/stock/lock", stockH.Lock)
		r.Post("/stock/confirm", stockH.Confirm)
		r.Post("/stock/release", stockH.Release)
		r.Post("/stock/adjust", stockH.Adjust)

		// Orders
		r.Post("/orders", orderH.Submit)

		// Cache epochs
		r.Get("/cache/{namespace}/epoch", cacheH.Epoch)
		r.Post("/cache/{namespace}/bump", cacheH.Bump)
	})

	return r
}
