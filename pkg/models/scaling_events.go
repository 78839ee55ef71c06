package models

import "time"

type ScalingEventStatus string

const (
	ScalingEventSuccess ScalingEventStatus = "success"
	ScalingEventFailed  ScalingEventStatus = "failed"
	ScalingEventClamped ScalingEventStatus = "clamped"
)

// ScalingEvent is the persisted form of a ScalingAction.
type ScalingEvent struct {
	ID           int                `json:"id"`
	EvaluationID string             `json:"evaluation_id"`
	SimTime      float64            `json:"sim_time"`
	Timestamp    time.Time          `json:"timestamp"`
	Kind         ActionKind         `json:"kind"`
	VMID         int                `json:"vm_id"`
	NewVMID      *int               `json:"new_vm_id,omitempty"`
	Predicted    float64            `json:"predicted"`
	Requested    float64            `json:"requested"`
	Applied      float64            `json:"applied"`
	Status       ScalingEventStatus `json:"status"`
	Reason       string             `json:"reason,omitempty"`
}

// ActionStatus classifies an action by what reached the datacenter.
func ActionStatus(action ScalingAction) ScalingEventStatus {
	switch {
	case action.Failed():
		return ScalingEventFailed
	case action.Applied < action.Requested:
		return ScalingEventClamped
	}
	return ScalingEventSuccess
}

func NewScalingEvent(eval *Evaluation, action ScalingAction) *ScalingEvent {
	status := ActionStatus(action)
	return &ScalingEvent{
		EvaluationID: eval.ID,
		SimTime:      eval.Time,
		Timestamp:    eval.EvaluatedAt,
		Kind:         action.Kind,
		VMID:         action.VMID,
		NewVMID:      action.NewVMID,
		Predicted:    action.Predicted,
		Requested:    action.Requested,
		Applied:      action.Applied,
		Status:       status,
		Reason:       action.Error,
	}
}
