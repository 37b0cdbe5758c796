// Package main is the entry point for the client registry background worker.
// It relays outbox events to Kafka (or the log) and runs periodic cleanup.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"clientregistry/internal/config"
	"clientregistry/internal/infrastructure/messaging"
	"clientregistry/internal/infrastructure/metrics"
	"clientregistry/internal/infrastructure/storage/postgres"
	"clientregistry/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting clientregistry worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.ApplicationName = "clientregistry-worker"
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool).WithStatementTimeout(cfg.Database.StatementTimeout)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	appMetrics := metrics.New(registry)
	appMetrics.RegisterPoolStats(pool)

	var sink postgres.OutboxHandler
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink := messaging.NewKafkaSink(messaging.NewKafkaWriter(messaging.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}), cfg.Kafka.Topic)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				log.Warnw("failed to close kafka writer", "error", err)
			}
		}()
		sink = kafkaSink
		log.Infow("publishing events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	} else {
		sink = messaging.NewLogSink(log)
		log.Info("no kafka brokers configured, events are logged only")
	}

	w := &Worker{
		relay: postgres.NewOutboxRelay(txManager, sink, appMetrics, postgres.RelayConfig{
			BatchSize:  cfg.Outbox.BatchSize,
			MaxRetries: cfg.Outbox.MaxRetries,
			Backoff:    cfg.Outbox.RetryBackoff,
		}),
		idempotency: postgres.NewIdempotencyStore(txManager, cfg.Idempotency.TTL),
		pool:        pool,
		metrics:     appMetrics,
		cfg:         cfg.Outbox,
		log:         log.WithComponent("worker"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.RunRelay(gctx) })
	g.Go(func() error { return w.RunMaintenance(gctx) })
	if cfg.Outbox.MetricsPort != "" {
		g.Go(func() error { return serveMetrics(gctx, ":"+cfg.Outbox.MetricsPort, registry, log) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("worker stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}

// Worker drives the outbox relay and the periodic cleanup jobs.
type Worker struct {
	relay       *postgres.OutboxRelay
	idempotency *postgres.IdempotencyStore
	pool        *postgres.Pool
	metrics     *metrics.Metrics
	cfg         config.OutboxConfig
	log         *logger.Logger
}

// RunRelay polls the outbox until ctx is done. A full batch is followed
// immediately by the next one.
func (w *Worker) RunRelay(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		delivered, err := w.relay.ProcessBatch(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Errorw("outbox batch failed", "error", err)
		}
		if delivered > 0 {
			w.metrics.ObserveBatch(delivered)
			w.log.Debugw("outbox batch delivered", "count", delivered)
		}
		if delivered >= w.cfg.BatchSize && ctx.Err() == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunMaintenance runs the periodic cleanup jobs until ctx is done.
func (w *Worker) RunMaintenance(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		w.cleanup(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if n, err := w.relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("failed to move outbox messages to DLQ", "error", err)
	} else if n > 0 {
		w.log.Warnw("outbox messages moved to DLQ", "count", n)
	}

	if n, err := w.relay.PurgePublished(ctx, w.cfg.Retention); err != nil {
		w.log.Errorw("failed to purge published outbox messages", "error", err)
	} else if n > 0 {
		w.log.Infow("purged published outbox messages", "count", n)
	}

	if n, err := w.idempotency.CleanupExpired(ctx); err != nil {
		w.log.Errorw("failed to clean up idempotency keys", "error", err)
	} else if n > 0 {
		w.log.Infow("expired idempotency keys removed", "count", n)
	}

	w.pool.LogStats(ctx)
}

func serveMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, log *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Infow("worker metrics listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
