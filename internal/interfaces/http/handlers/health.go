package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/riftgate/llmgateway/internal/domain/session"
	"github.com/riftgate/llmgateway/internal/infrastructure/llm"
)

// Version is stamped at build time via -ldflags; defaults to "dev".
var Version = "dev"

// HealthHandler implements GET /health and GET /health/ready.
type HealthHandler struct {
	store  session.Store
	router *llm.Router
}

func NewHealthHandler(store session.Store, router *llm.Router) *HealthHandler {
	return &HealthHandler{store: store, router: router}
}

// Health handles GET /health — a liveness check with no dependency probes.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": Version})
}

// Ready handles GET /health/ready — readiness, probing the session store
// (critical) and each configured provider's IsAvailable (optional: a
// missing provider key degrades, it doesn't fail the whole gateway).
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.probeStore(c.Request.Context()); err != nil {
		checks["store"] = "down: " + err.Error()
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	for _, p := range h.router.Providers() {
		key := "upstream_" + p.Name()
		if p.IsAvailable(c.Request.Context()) {
			checks[key] = "ok"
		} else {
			checks[key] = "unavailable"
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	c.JSON(httpStatus, gin.H{"status": status, "checks": checks})
}

func (h *HealthHandler) probeStore(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	_, err := h.store.Exists(ctx, "__health_probe__")
	return err
}
