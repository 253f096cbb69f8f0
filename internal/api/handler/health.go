package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nina/mediascout/internal/provider"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	providers []provider.SearchProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(providers []provider.SearchProvider) *HealthHandler {
	return &HealthHandler{providers: providers}
}

// Health returns the health status of the service, including a probe of
// each configured search provider. The overall status degrades when any
// provider is not healthy but stays 200 as long as the service itself
// can serve requests.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	overall := "ok"
	probes := make(map[string]provider.HealthStatus, len(h.providers))
	for _, p := range h.providers {
		status := p.Health(ctx)
		probes[p.Name()] = status
		if status.State != provider.Healthy {
			overall = "degraded"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    overall,
		"providers": probes,
	})
}
