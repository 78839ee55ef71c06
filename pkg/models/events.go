package models

import "time"

type EventType string

const (
	EventTypeTickEvaluated      EventType = "tick_evaluated"
	EventTypePredictionFallback EventType = "prediction_fallback"
	EventTypeVMAdded            EventType = "vm_added"
	EventTypeVMPlaced           EventType = "vm_placed"
	EventTypeCPUGrown           EventType = "cpu_grown"
	EventTypeRAMGrown           EventType = "ram_grown"
	EventTypeScalingFailed      EventType = "scaling_failed"
	EventTypeSimulationFinished EventType = "simulation_finished"
	EventTypeError              EventType = "error"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event represents an internal system event
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	VMID      *int          `json:"vm_id,omitempty"`
	SimTime   float64       `json:"sim_time"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, simTime float64, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		SimTime:   simTime,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithVM(vmID int) *Event {
	e.VMID = &vmID
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}
