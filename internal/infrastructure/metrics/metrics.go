// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"clientregistry/internal/domain"
	"clientregistry/internal/domain/client"
	"clientregistry/internal/infrastructure/storage/postgres"
)

const namespace = "clientregistry"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
	AppErrors            *prometheus.CounterVec
	ClientMutations      *prometheus.CounterVec
	OutboxDeliveredTotal *prometheus.CounterVec
	OutboxFailedTotal    *prometheus.CounterVec
	OutboxBatchSize      prometheus.Histogram

	factory promauto.Factory
}

var _ postgres.RelayObserver = (*Metrics)(nil)

// New creates and registers all metrics on reg. Production passes
// prometheus.DefaultRegisterer, tests a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AppErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "app_errors_total",
			Help:      "Errors returned to API callers by error code",
		}, []string{"code"}),
		ClientMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_mutations_total",
			Help:      "Committed client mutations by lifecycle event",
		}, []string{"event"}),
		OutboxDeliveredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_delivered_total",
			Help:      "Outbox messages delivered to the sink by event type",
		}, []string{"event_type"}),
		OutboxFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_delivery_failures_total",
			Help:      "Failed outbox delivery attempts by event type",
		}, []string{"event_type"}),
		OutboxBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_batch_delivered",
			Help:      "Messages delivered per relay batch",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		factory: factory,
	}
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveError counts an error code returned to a caller.
func (m *Metrics) ObserveError(code string) {
	m.AppErrors.WithLabelValues(code).Inc()
}

// OutboxDelivered implements postgres.RelayObserver.
func (m *Metrics) OutboxDelivered(eventType string) {
	m.OutboxDeliveredTotal.WithLabelValues(eventType).Inc()
}

// OutboxFailed implements postgres.RelayObserver.
func (m *Metrics) OutboxFailed(eventType string) {
	m.OutboxFailedTotal.WithLabelValues(eventType).Inc()
}

// ObserveBatch records how many messages one relay batch delivered.
func (m *Metrics) ObserveBatch(delivered int) {
	m.OutboxBatchSize.Observe(float64(delivered))
}

// ObserveMutations counts committed mutations through the service hooks.
func (m *Metrics) ObserveMutations(hooks *domain.HookRegistry[*client.Client]) {
	for _, event := range []domain.HookEvent{domain.AfterCreate, domain.AfterUpdate, domain.AfterDelete} {
		counter := m.ClientMutations.WithLabelValues(string(event))
		hooks.On(event, func(context.Context, *client.Client) error {
			counter.Inc()
			return nil
		})
	}
}

// RegisterPoolStats exposes connection pool counters as gauges read on scrape.
func (m *Metrics) RegisterPoolStats(pool *postgres.Pool) {
	gauge := func(name, help string, read func(postgres.PoolStats) float64) {
		m.factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(pool.Stats()) })
	}
	gauge("total_conns", "Connections currently open", func(s postgres.PoolStats) float64 { return float64(s.TotalConns) })
	gauge("acquired_conns", "Connections currently in use", func(s postgres.PoolStats) float64 { return float64(s.AcquiredConns) })
	gauge("idle_conns", "Idle connections", func(s postgres.PoolStats) float64 { return float64(s.IdleConns) })
	gauge("max_conns", "Configured maximum connections", func(s postgres.PoolStats) float64 { return float64(s.MaxConns) })
}
