package orchestrator

import (
	"sync"
	"time"

	"github.com/OldStager01/vm-autoscaler/internal/metrics"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// ActionRecord is a scaling action with the tick that produced it.
type ActionRecord struct {
	EvaluationID string  `json:"evaluation_id"`
	SimTime      float64 `json:"sim_time"`
	models.ScalingAction
	Status models.ScalingEventStatus `json:"status"`
}

// history keeps the most recent evaluations in memory for the API.
type history struct {
	evaluations []*models.Evaluation
	capacity    int
	mu          sync.RWMutex
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = 200
	}
	return &history{capacity: capacity}
}

func (h *history) add(eval *models.Evaluation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evaluations = append(h.evaluations, eval)
	if len(h.evaluations) > h.capacity {
		h.evaluations = h.evaluations[len(h.evaluations)-h.capacity:]
	}
}

// recent returns up to limit evaluations, newest first.
func (h *history) recent(limit int) []*models.Evaluation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.evaluations) {
		limit = len(h.evaluations)
	}
	out := make([]*models.Evaluation, 0, limit)
	for i := len(h.evaluations) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.evaluations[i])
	}
	return out
}

// actions returns up to limit actions, newest first.
func (h *history) actions(limit int) []ActionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ActionRecord, 0)
	for i := len(h.evaluations) - 1; i >= 0; i-- {
		eval := h.evaluations[i]
		for j := len(eval.Actions) - 1; j >= 0; j-- {
			if limit > 0 && len(out) >= limit {
				return out
			}
			a := eval.Actions[j]
			out = append(out, ActionRecord{
				EvaluationID:  eval.ID,
				SimTime:       eval.Time,
				ScalingAction: a,
				Status:        models.ActionStatus(a),
			})
		}
	}
	return out
}

// recorder feeds evaluations to prometheus and the in-memory history.
type recorder struct {
	metrics *metrics.Metrics
	history *history
}

func (r *recorder) IncTick(accepted bool) {
	r.metrics.IncTick(accepted)
}

func (r *recorder) RecordEvaluation(eval *models.Evaluation, took time.Duration) {
	r.metrics.RecordEvaluation(eval, took)
	r.history.add(eval)
}
