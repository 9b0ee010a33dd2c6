package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Lock metrics
	LockAcquisitions *prometheus.CounterVec
	LockWaitDuration *prometheus.HistogramVec

	// Idempotency metrics
	IdempotencyChecks *prometheus.CounterVec

	// Rate limit metrics
	RateLimitDecisions *prometheus.CounterVec

	// Epoch / invalidation metrics
	EpochBumps       *prometheus.CounterVec
	InvalidationFans prometheus.Counter

	// Stock metrics
	StockMutations *prometheus.CounterVec
	CASConflicts   *prometheus.CounterVec

	// Outbox metrics
	OutboxDeliveries   *prometheus.CounterVec
	OutboxDeadLetters  prometheus.Counter
	OutboxPollDuration prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		LockAcquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_acquisitions_total",
				Help:      "Lock acquisition attempts by outcome",
			},
			[]string{"outcome"},
		),
		LockWaitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for contended locks",
				Buckets:   []float64{0.001, 0.005, 0.02, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"outcome"},
		),
		IdempotencyChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotency_checks_total",
				Help:      "Idempotency admission checks by outcome",
			},
			[]string{"scene", "outcome"},
		),
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limiter admissions and rejections",
			},
			[]string{"outcome"},
		),
		EpochBumps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "epoch_bumps_total",
				Help:      "Epoch bumps by namespace",
			},
			[]string{"namespace"},
		),
		InvalidationFans: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalidation_broadcasts_total",
				Help:      "Invalidation events broadcast on the local bus",
			},
		),
		StockMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stock_mutations_total",
				Help:      "Stock ledger mutations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		CASConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stock_cas_conflicts_total",
				Help:      "Version conflicts observed during stock CAS cycles",
			},
			[]string{"operation"},
		),
		OutboxDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_deliveries_total",
				Help:      "Outbox message deliveries by outcome",
			},
			[]string{"event_type", "outcome"},
		),
		OutboxDeadLetters: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_dead_letters_total",
				Help:      "Outbox messages parked after exhausting attempts",
			},
		),
		OutboxPollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "outbox_poll_seconds",
				Help:      "Duration of one outbox poll cycle",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by route, method and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.LockAcquisitions,
		m.LockWaitDuration,
		m.IdempotencyChecks,
		m.RateLimitDecisions,
		m.EpochBumps,
		m.InvalidationFans,
		m.StockMutations,
		m.CASConflicts,
		m.OutboxDeliveries,
		m.OutboxDeadLetters,
		m.OutboxPollDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}
