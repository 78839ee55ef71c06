package events

import (
	"fmt"

	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p == nil || p.bus == nil {
		return
	}
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) TickEvaluated(eval *models.Evaluation) {
	msg := fmt.Sprintf("Evaluated %d VMs, %d actions", eval.Summary.TotalVMs, len(eval.Actions))
	event := models.NewEvent(models.EventTypeTickEvaluated, eval.Time, msg).
		WithData(eval)
	p.publish(event)
}

func (p *Publisher) PredictionFallback(prediction models.Prediction) {
	event := models.NewEvent(models.EventTypePredictionFallback, prediction.Time, "Predictor unavailable, fallback used").
		WithSeverity(models.SeverityWarning).
		WithVM(prediction.VMID).
		WithData(prediction)
	p.publish(event)
}

// ScalingAction publishes the event matching the action kind, or a
// scaling failure when the datacenter rejected it.
func (p *Publisher) ScalingAction(simTime float64, action models.ScalingAction) {
	if action.Failed() {
		event := models.NewEvent(models.EventTypeScalingFailed, simTime, "Scaling failed: "+string(action.Kind)).
			WithSeverity(models.SeverityCritical).
			WithVM(action.VMID).
			WithData(action)
		p.publish(event)
		return
	}

	var eventType models.EventType
	var msg string
	switch action.Kind {
	case models.ActionAddVM:
		eventType = models.EventTypeVMAdded
		msg = "Horizontal scaling: VM added"
	case models.ActionGrowCPU:
		eventType = models.EventTypeCPUGrown
		msg = fmt.Sprintf("Vertical CPU scaling: +%.0f PE", action.Applied)
	case models.ActionGrowRAM:
		eventType = models.EventTypeRAMGrown
		msg = fmt.Sprintf("Vertical RAM scaling: +%.0f", action.Applied)
	default:
		return
	}

	event := models.NewEvent(eventType, simTime, msg).
		WithVM(action.VMID).
		WithData(action)
	if action.Applied < action.Requested {
		event.WithSeverity(models.SeverityWarning)
	}
	p.publish(event)
}

func (p *Publisher) VMPlaced(simTime float64, vm *models.VM) {
	msg := "VM placed"
	if vm.HostID != nil {
		msg = fmt.Sprintf("VM placed on host %d", *vm.HostID)
	}
	event := models.NewEvent(models.EventTypeVMPlaced, simTime, msg).
		WithVM(vm.ID).
		WithData(vm)
	p.publish(event)
}

func (p *Publisher) SimulationFinished(simTime float64, summary models.FleetSummary) {
	event := models.NewEvent(models.EventTypeSimulationFinished, simTime, "Simulation finished").
		WithData(summary)
	p.publish(event)
}

func (p *Publisher) Error(simTime float64, message string, err error) {
	event := models.NewEvent(models.EventTypeError, simTime, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}
