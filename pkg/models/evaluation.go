package models

import "time"

// FleetSummary is reported at the start of every accepted tick.
type FleetSummary struct {
	FinishedWorkloads int `json:"finished_workloads" yaml:"finished_workloads"`
	TotalVMs          int `json:"total_vms" yaml:"total_vms"`
	AllocatedVMs      int `json:"allocated_vms" yaml:"allocated_vms"`
}

// VMObservation is the utilization a VM showed when the tick was evaluated.
type VMObservation struct {
	VMID    int     `json:"vm_id"`
	CPUUtil float64 `json:"cpu_util"`
	RAMUtil float64 `json:"ram_util"`
	HostID  *int    `json:"host_id,omitempty"`
}

type ActionKind string

const (
	ActionAddVM   ActionKind = "add_vm"
	ActionGrowCPU ActionKind = "grow_cpu"
	ActionGrowRAM ActionKind = "grow_ram"
)

// ScalingAction records one triggered threshold. Requested is what the
// policy asked for, Applied is what reached the datacenter.
type ScalingAction struct {
	Kind      ActionKind `json:"kind"`
	VMID      int        `json:"vm_id"`
	NewVMID   *int       `json:"new_vm_id,omitempty"`
	Predicted float64    `json:"predicted"`
	Threshold float64    `json:"threshold"`
	Requested float64    `json:"requested"`
	Applied   float64    `json:"applied"`
	Error     string     `json:"error,omitempty"`
}

func (a *ScalingAction) Failed() bool {
	return a.Error != ""
}

// Evaluation is the outcome of one accepted decision tick.
type Evaluation struct {
	ID           string          `json:"id"`
	Time         float64         `json:"time"`
	EvaluatedAt  time.Time       `json:"evaluated_at"`
	Summary      FleetSummary    `json:"summary"`
	Observations []VMObservation `json:"observations"`
	Predictions  []Prediction    `json:"predictions"`
	Actions      []ScalingAction `json:"actions"`
}

func NewEvaluation(t float64) *Evaluation {
	return &Evaluation{
		ID:          NewUUID(),
		Time:        t,
		EvaluatedAt: time.Now(),
	}
}

// FallbackCount returns how many predictions came from the fallback.
func (e *Evaluation) FallbackCount() int {
	n := 0
	for i := range e.Predictions {
		if e.Predictions[i].IsFallback() {
			n++
		}
	}
	return n
}

func (e *Evaluation) ActionsOf(kind ActionKind) []ScalingAction {
	var out []ScalingAction
	for _, a := range e.Actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}
