package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/vm-autoscaler/internal/orchestrator"
	"github.com/OldStager01/vm-autoscaler/pkg/config"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
	"github.com/OldStager01/vm-autoscaler/pkg/validation"
)

// FleetView is the read side of a running simulation.
type FleetView interface {
	Status() orchestrator.Status
	VMs() []models.VM
	Hosts() []models.Host
	LastEvaluation() *models.Evaluation
	RecentEvaluations(limit int) []*models.Evaluation
	RecentActions(limit int) []orchestrator.ActionRecord
	SubscribeAllEvents() <-chan *models.Event
}

type FleetHandler struct {
	fleet  FleetView
	limits limits
}

func NewFleetHandler(fleet FleetView, cfg *config.APIConfig) *FleetHandler {
	return &FleetHandler{fleet: fleet, limits: newLimits(cfg)}
}

// Status godoc
// @Summary Simulation status
// @Tags Fleet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} orchestrator.Status
// @Router /fleet [get]
func (h *FleetHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.fleet.Status())
}

// ListVMs godoc
// @Summary List VMs
// @Description Returns every VM in the roster with its current utilization and placement
// @Tags Fleet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /fleet/vms [get]
func (h *FleetHandler) ListVMs(c *gin.Context) {
	vms := h.fleet.VMs()
	c.JSON(http.StatusOK, gin.H{"vms": vms, "count": len(vms)})
}

// GetVM godoc
// @Summary Get VM
// @Tags Fleet
// @Produce json
// @Security BearerAuth
// @Param id path int true "VM ID"
// @Success 200 {object} models.VM
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /fleet/vms/{id} [get]
func (h *FleetHandler) GetVM(c *gin.Context) {
	id, err := validation.ParseVMID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, vm := range h.fleet.VMs() {
		if vm.ID == id {
			c.JSON(http.StatusOK, vm)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "vm not found"})
}

// ListHosts godoc
// @Summary List hosts
// @Tags Fleet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /fleet/hosts [get]
func (h *FleetHandler) ListHosts(c *gin.Context) {
	hosts := h.fleet.Hosts()
	c.JSON(http.StatusOK, gin.H{"hosts": hosts, "count": len(hosts)})
}

// LatestEvaluation godoc
// @Summary Latest evaluation
// @Tags Evaluations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Evaluation
// @Failure 404 {object} map[string]string
// @Router /evaluations/latest [get]
func (h *FleetHandler) LatestEvaluation(c *gin.Context) {
	eval := h.fleet.LastEvaluation()
	if eval == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tick evaluated yet"})
		return
	}
	c.JSON(http.StatusOK, eval)
}

// RecentEvaluations godoc
// @Summary Recent evaluations
// @Tags Evaluations
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum results"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /evaluations/recent [get]
func (h *FleetHandler) RecentEvaluations(c *gin.Context) {
	limit, ok := h.limits.parse(c)
	if !ok {
		return
	}
	evals := h.fleet.RecentEvaluations(limit)
	c.JSON(http.StatusOK, gin.H{"evaluations": evals, "count": len(evals)})
}

// RecentActions godoc
// @Summary Recent scaling actions
// @Tags Evaluations
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum results"
// @Param kind query string false "Filter by kind (add_vm, grow_cpu, grow_ram)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /actions/recent [get]
func (h *FleetHandler) RecentActions(c *gin.Context) {
	limit, ok := h.limits.parse(c)
	if !ok {
		return
	}
	kind := models.ActionKind(c.Query("kind"))

	actions := h.fleet.RecentActions(limit)
	if kind != "" {
		filtered := actions[:0]
		for _, a := range actions {
			if a.Kind == kind {
				filtered = append(filtered, a)
			}
		}
		actions = filtered
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

type limits struct {
	def int
	max int
}

func newLimits(cfg *config.APIConfig) limits {
	l := limits{def: 50, max: 500}
	if cfg != nil {
		if cfg.DefaultLimit > 0 {
			l.def = cfg.DefaultLimit
		}
		if cfg.MaxLimit > 0 {
			l.max = cfg.MaxLimit
		}
	}
	return l
}

func (l limits) parse(c *gin.Context) (int, bool) {
	n, err := validation.ParseLimit(c.Query("limit"), l.def, l.max)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, validation.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return 0, false
	}
	return n, true
}
