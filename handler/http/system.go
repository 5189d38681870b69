package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const probeTimeout = 3 * time.Second

type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthStatus struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
}

// CheckHealth handles GET /api/v1/health. The service is degraded, not down, when
// an optional dependency fails its probe.
func (h *Handler) CheckHealth(c *gin.Context) {
	status := HealthStatus{Status: "ok", Components: map[string]ComponentStatus{}}

	for name, ready := range h.pipeline.Ready() {
		if ready {
			status.Components[name] = ComponentStatus{Status: "up"}
		} else {
			status.Components[name] = ComponentStatus{Status: "disabled"}
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			status.Components[name] = ComponentStatus{Status: "down", Error: err.Error()}
			status.Status = "degraded"
			continue
		}
		status.Components[name] = ComponentStatus{Status: "up"}
	}

	sendJSON(c, http.StatusOK, status)
}
