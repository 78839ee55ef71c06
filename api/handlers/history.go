package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/pkg/config"
	"github.com/OldStager01/vm-autoscaler/pkg/database/queries"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
	"github.com/OldStager01/vm-autoscaler/pkg/validation"
)

// HistoryHandler serves persisted evaluations, scaling events and bus
// events. It is only mounted when the database is enabled.
type HistoryHandler struct {
	evaluations *queries.EvaluationRepository
	scaling     *queries.ScalingEventRepository
	events      *queries.EventRepository
	limits      limits
}

func NewHistoryHandler(
	evaluations *queries.EvaluationRepository,
	scaling *queries.ScalingEventRepository,
	events *queries.EventRepository,
	cfg *config.APIConfig,
) *HistoryHandler {
	return &HistoryHandler{
		evaluations: evaluations,
		scaling:     scaling,
		events:      events,
		limits:      newLimits(cfg),
	}
}

// Evaluations godoc
// @Summary Persisted evaluations
// @Description Evaluations whose simulation time falls in [from, to]
// @Tags History
// @Produce json
// @Security BearerAuth
// @Param from query number false "Lower simulation time bound"
// @Param to query number false "Upper simulation time bound"
// @Param limit query int false "Maximum results"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /history/evaluations [get]
func (h *HistoryHandler) Evaluations(c *gin.Context) {
	limit, ok := h.limits.parse(c)
	if !ok {
		return
	}
	from, err := parseSimTime(c.Query("from"), 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be a number"})
		return
	}
	to, err := parseSimTime(c.Query("to"), math.MaxFloat64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be a number"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	records, err := h.evaluations.GetRange(ctx, from, to, limit)
	if err != nil {
		h.fail(c, "failed to fetch evaluations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluations": records, "count": len(records)})
}

// ScalingEvents godoc
// @Summary Persisted scaling actions
// @Tags History
// @Produce json
// @Security BearerAuth
// @Param vm_id query int false "Only actions on this VM"
// @Param limit query int false "Maximum results"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /history/actions [get]
func (h *HistoryHandler) ScalingEvents(c *gin.Context) {
	limit, ok := h.limits.parse(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	var (
		events []models.ScalingEvent
		err    error
	)
	if raw := c.Query("vm_id"); raw != "" {
		vmID, perr := validation.ParseVMID(raw)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error()})
			return
		}
		events, err = h.scaling.GetByVM(ctx, vmID, limit)
	} else {
		events, err = h.scaling.GetRecent(ctx, limit)
	}
	if err != nil {
		h.fail(c, "failed to fetch scaling events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": events, "count": len(events)})
}

// ScalingStats godoc
// @Summary Scaling action totals
// @Description Totals per action kind with clamped and failed counts
// @Tags History
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /history/actions/stats [get]
func (h *HistoryHandler) ScalingStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stats, err := h.scaling.GetStats(ctx)
	if err != nil {
		h.fail(c, "failed to fetch scaling stats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// RecentEvents godoc
// @Summary Recent events
// @Tags History
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum results"
// @Success 200 {object} map[string]interface{}
// @Router /events/recent [get]
func (h *HistoryHandler) RecentEvents(c *gin.Context) {
	limit, ok := h.limits.parse(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	events, err := h.events.GetRecent(ctx, limit)
	if err != nil {
		h.fail(c, "failed to fetch events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (h *HistoryHandler) fail(c *gin.Context, msg string, err error) {
	logger.WithContext(c.Request.Context()).Errorf("%s: %v", msg, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func parseSimTime(raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}
