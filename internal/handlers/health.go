package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rdcourtney/flatmap/api/internal/database"
	"github.com/rdcourtney/flatmap/api/internal/middleware"
)

const (
	// APIVersion is the current version of the API
	APIVersion = "0.1.0"
	// HealthCheckTimeout is the timeout for database health checks
	HealthCheckTimeout = 2 * time.Second
)

// SessionCounter reports how many viewer sessions are currently cached.
type SessionCounter interface {
	CachedSessions() int
}

// HealthHandler handles health check and readiness endpoints.
type HealthHandler struct {
	db        *database.Database
	sessions  SessionCounter
	startTime time.Time
	env       string
	mapRoot   string
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(db *database.Database, sessions SessionCounter, env, mapRoot string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		sessions:  sessions,
		startTime: time.Now(),
		env:       env,
		mapRoot:   mapRoot,
	}
}

// HealthResponse represents the basic health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Bundles  string `json:"bundles"`
}

// InfoResponse represents the API information response.
type InfoResponse struct {
	Version        string `json:"version"`
	Environment    string `json:"environment"`
	Uptime         string `json:"uptime"`
	CachedSessions int    `json:"cachedSessions"`
}

// Health handles GET /health endpoint.
// This is a basic health check that always returns 200 OK.
// It does not check any dependencies and is used for basic liveness checks.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
	})
}

// Ready handles GET /health/ready endpoint.
// Readiness needs both the flatmap registry database and the bundle
// directory; a map list without loadable bundles serves nothing useful.
// Returns 200 OK when both are available, 503 Service Unavailable otherwise.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), HealthCheckTimeout)
	defer cancel()

	response := ReadyResponse{
		Status:   "ready",
		Database: "connected",
		Bundles:  "available",
	}

	if err := h.db.Ping(ctx); err != nil {
		if log := middleware.GetLogger(c); log != nil {
			log.Error("Database health check failed", err, map[string]interface{}{
				"timeout": HealthCheckTimeout.String(),
			})
		}
		response.Status = "not_ready"
		response.Database = "disconnected"
	}

	if info, err := os.Stat(h.mapRoot); err != nil || !info.IsDir() {
		if log := middleware.GetLogger(c); log != nil {
			log.Error("Bundle root health check failed", err, map[string]interface{}{
				"root": h.mapRoot,
			})
		}
		response.Status = "not_ready"
		response.Bundles = "unavailable"
	}

	status := http.StatusOK
	if response.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}

// Info handles GET /api/v1/info endpoint.
// Returns API metadata including version, environment, uptime and the number
// of cached viewer sessions.
func (h *HealthHandler) Info(c *gin.Context) {
	uptime := time.Since(h.startTime)

	cached := 0
	if h.sessions != nil {
		cached = h.sessions.CachedSessions()
	}

	c.JSON(http.StatusOK, InfoResponse{
		Version:        APIVersion,
		Environment:    h.env,
		Uptime:         formatUptime(uptime),
		CachedSessions: cached,
	})
}

// formatUptime formats a duration into a human-readable string.
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
