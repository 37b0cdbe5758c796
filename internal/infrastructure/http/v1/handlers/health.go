// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"clientregistry/internal/infrastructure/storage/postgres"
	"clientregistry/pkg/logger"
)

// Database is what the health endpoints probe.
type Database interface {
	Ping(ctx context.Context) error
	Stats() postgres.PoolStats
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	App     string
	Version string
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db   Database
	info BuildInfo
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Database, info BuildInfo) *HealthHandler {
	return &HealthHandler{db: db, info: info}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		logger.Warn(c.Request.Context(), "readiness check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"checks": map[string]string{
				"database": "unhealthy",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]string{
			"database": "healthy",
		},
	})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	stat := h.db.Stats()

	c.JSON(http.StatusOK, gin.H{
		"app":     h.info.App,
		"version": h.info.Version,
		"database": map[string]any{
			"total_conns":    stat.TotalConns,
			"acquired_conns": stat.AcquiredConns,
			"idle_conns":     stat.IdleConns,
			"max_conns":      stat.MaxConns,
		},
	})
}
