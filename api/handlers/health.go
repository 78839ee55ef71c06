package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/vm-autoscaler/internal/orchestrator"
	"github.com/OldStager01/vm-autoscaler/pkg/database"
)

type HealthHandler struct {
	db    *database.DB
	fleet FleetView
}

// NewHealthHandler accepts a nil db when persistence is disabled.
func NewHealthHandler(db *database.DB, fleet FleetView) *HealthHandler {
	return &HealthHandler{db: db, fleet: fleet}
}

type HealthResponse struct {
	Status    string            `json:"status" example:"healthy"`
	Timestamp string            `json:"timestamp" example:"2024-01-15T10:30:00Z"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health godoc
// @Summary Service health
// @Description Reports database connectivity and the simulation run state
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		if db := h.db.Health(ctx); db.Healthy {
			checks["database"] = "healthy"
		} else {
			checks["database"] = "unhealthy: " + db.Error
			status = "unhealthy"
		}
	} else {
		checks["database"] = "disabled"
	}

	if h.fleet != nil {
		st := h.fleet.Status()
		checks["simulation"] = string(st.State)
		if st.State == orchestrator.StateFailed {
			status = "degraded"
		}
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: now(),
		Checks:    checks,
	})
}

// Ready godoc
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if h.db != nil && !h.db.Health(ctx).Healthy {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "not ready", Timestamp: now()})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ready", Timestamp: now()})
}

// Live godoc
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "alive", Timestamp: now()})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
