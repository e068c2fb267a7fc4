package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceVersion = "0.2.0"

// Pinger is the slice of the document store the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendProber reports LLM backend availability.
type BackendProber interface {
	Backends() []string
	IsAvailable(ctx context.Context, backend string) (bool, string)
}

// HealthHandler serves the service banner and health probes.
type HealthHandler struct {
	db     Pinger
	llm    BackendProber
	logger *zap.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(db Pinger, llm BackendProber, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, llm: llm, logger: logger}
}

// Root returns the service banner.
// GET /
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "aria",
		"version": serviceVersion,
		"docs":    "/api/v1",
	})
}

// Health reports overall liveness. An unreachable database makes the
// service unhealthy with a 503.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status := "healthy"
	database := "connected"
	code := http.StatusOK

	if err := h.db.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("Database ping failed", zap.Error(err))
		status = "unhealthy"
		database = "unreachable: " + err.Error()
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"version":   serviceVersion,
		"database":  database,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthLLM reports per-backend availability with a reason string.
// GET /health/llm
func (h *HealthHandler) HealthLLM(c *gin.Context) {
	backends := gin.H{}
	for _, name := range h.llm.Backends() {
		available, reason := h.llm.IsAvailable(c.Request.Context(), name)
		backends[name] = gin.H{
			"available": available,
			"reason":    reason,
		}
	}
	c.JSON(http.StatusOK, gin.H{"backends": backends})
}
