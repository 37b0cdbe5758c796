// Package main is the entry point for the client registry API server.
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
	"github.com/redis/go-redis/v9"

	"clientregistry/internal/config"
	"clientregistry/internal/domain/auth"
	"clientregistry/internal/domain/client"
	"clientregistry/internal/infrastructure/cache"
	v1 "clientregistry/internal/infrastructure/http/v1"
	"clientregistry/internal/infrastructure/http/v1/handlers"
	"clientregistry/internal/infrastructure/metrics"
	"clientregistry/internal/infrastructure/storage/postgres"
	"clientregistry/internal/infrastructure/storage/postgres/client_repo"
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

	ctx := context.Background()
	log.Infow("starting clientregistry server", "env", cfg.App.Env, "version", cfg.App.Version)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	if cfg.Database.MigrateOnStart {
		if err := migrateUp(pool, log); err != nil {
			log.Fatalw("failed to apply migrations", "error", err)
		}
	}

	txManager := postgres.NewTxManager(pool).WithStatementTimeout(cfg.Database.StatementTimeout)

	// --- Client service ---
	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to create audit service", "error", err)
	}
	service := client.NewService(client.ServiceConfig{
		Repo:      client_repo.New(txManager),
		TxManager: txManager,
		Events:    postgres.NewOutboxPublisher(txManager),
		Auditor:   auditService,
	})

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)
	appMetrics.ObserveMutations(service.Hooks())
	appMetrics.RegisterPoolStats(pool)

	routerCfg := v1.RouterConfig{
		Logger:   log,
		Clients:  service,
		Reports:  service,
		History:  auditService,
		Database: pool,
		Build:    handlers.BuildInfo{App: cfg.App.Name, Version: cfg.App.Version},
		Metrics:  appMetrics,
		Gatherer: registry,
	}
	if cfg.App.Development() {
		routerCfg.Mode = "debug"
	}

	// --- Report cache ---
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalw("invalid REDIS_URL", "error", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The cache degrades to direct loads while Redis is down.
			log.Warnw("redis unavailable at startup", "error", err)
		}
		reportCache := cache.NewReportCache(rdb, cfg.Redis.ReportCacheTTL)
		service.Hooks().OnAfterCommit(reportCache.InvalidateHook)
		routerCfg.ReportCache = reportCache
		log.Infow("report cache enabled", "ttl", cfg.Redis.ReportCacheTTL)
	}

	// --- Auth ---
	if cfg.Auth.Enabled {
		jwtConfig := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
		jwtConfig.Issuer = cfg.Auth.Issuer
		jwtConfig.AccessTokenTTL = cfg.Auth.TokenTTL
		routerCfg.JWTValidator = auth.NewJWTService(jwtConfig)
		log.Info("bearer authentication enabled")
	}

	// --- Idempotency ---
	if cfg.Idempotency.Enabled {
		routerCfg.Idempotency = postgres.NewIdempotencyStore(txManager, cfg.Idempotency.TTL)
		log.Infow("idempotency enabled", "ttl", cfg.Idempotency.TTL)
	}

	router, err := v1.NewRouter(routerCfg)
	if err != nil {
		log.Fatalw("failed to build router", "error", err)
	}

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func migrateUp(pool *postgres.Pool, log *logger.Logger) error {
	migrator, err := postgres.NewMigrator(pool, log.Zap())
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Up()
}
