package v1

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clientregistry/internal/domain/auth"
	"clientregistry/internal/infrastructure/http/v1/dto"
	"clientregistry/internal/infrastructure/http/v1/handlers"
	"clientregistry/internal/infrastructure/http/v1/middleware"
	"clientregistry/internal/infrastructure/metrics"
	"clientregistry/pkg/logger"
)

// RouterConfig holds router dependencies. Optional parts are disabled when nil.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Clients serves the client resource and its addresses
	Clients handlers.ClientService

	// Reports produces report rows; ReportCache is optional
	Reports     handlers.ReportSource
	ReportCache handlers.RowCache

	// History reads the audit trail (optional)
	History handlers.HistoryReader

	// Database is probed by the health endpoints
	Database handlers.Database
	Build    handlers.BuildInfo

	// JWTValidator enables bearer authentication and role checks
	JWTValidator middleware.JWTValidator

	// Idempotency enables X-Idempotency-Key handling on mutations
	Idempotency middleware.IdempotencyStore

	// Metrics and Gatherer enable request metrics and GET /metrics
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// Mode is the gin mode; release when empty
	Mode string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	if err := dto.SetupValidator(); err != nil {
		return nil, fmt.Errorf("setup validator: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(log))
	var recorder middleware.ErrorRecorder
	if cfg.Metrics != nil {
		recorder = cfg.Metrics
		router.Use(middleware.Metrics(cfg.Metrics))
	}
	router.Use(middleware.ErrorHandler(recorder))
	router.Use(middleware.Recovery())

	if cfg.Database != nil {
		healthHandler := handlers.NewHealthHandler(cfg.Database, cfg.Build)
		health := router.Group("/health")
		{
			health.GET("/live", healthHandler.Live)
			health.GET("/ready", healthHandler.Ready)
			health.GET("/info", healthHandler.Info)
		}
	}

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	var g guards
	if cfg.JWTValidator != nil {
		api.Use(middleware.Auth(cfg.JWTValidator))
		g.read = append(g.read, middleware.RequireRole(auth.RoleReader, auth.RoleEditor))
		g.write = append(g.write, middleware.RequireRole(auth.RoleEditor))
	}
	if cfg.Idempotency != nil {
		g.write = append(g.write, middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()

	if cfg.Clients != nil {
		var history *handlers.HistoryHandler
		if cfg.History != nil {
			history = handlers.NewHistoryHandler(base, cfg.History)
		}
		registerClientRoutes(api.Group("/clients"), handlers.NewClientHandler(base, cfg.Clients), history, g)
	}

	if cfg.Reports != nil {
		registerReportRoutes(api.Group("/reports"), handlers.NewReportHandler(base, cfg.Reports, cfg.ReportCache), g)
	}

	return router, nil
}
