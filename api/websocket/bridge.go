package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// Message is the frame sent to dashboard clients.
type Message struct {
	Type      string      `json:"type"`
	SimTime   float64     `json:"sim_time"`
	Timestamp time.Time   `json:"timestamp"`
	VMID      *int        `json:"vm_id,omitempty"`
	Severity  string      `json:"severity,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// EventBridge forwards bus events to the hub until the source channel
// closes or the bridge is stopped.
type EventBridge struct {
	hub    *Hub
	source <-chan *models.Event
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEventBridge(hub *Hub, source <-chan *models.Event) *EventBridge {
	return &EventBridge{
		hub:    hub,
		source: source,
		done:   make(chan struct{}),
	}
}

func (b *EventBridge) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	go b.run(ctx)
}

func (b *EventBridge) Stop() {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
}

func (b *EventBridge) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-b.source:
			if !ok {
				logger.WithComponent("websocket").Debug("event channel closed, stopping bridge")
				return
			}
			b.forward(event)
		}
	}
}

func (b *EventBridge) forward(event *models.Event) {
	msg := ToMessage(event)
	if msg == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.WithComponent("websocket").Errorf("failed to marshal message: %v", err)
		return
	}
	b.hub.Broadcast(data)
}

// ToMessage maps a bus event to a dashboard frame. Events the dashboard has
// no use for map to nil.
func ToMessage(event *models.Event) *Message {
	msgType := messageType(event.Type)
	if msgType == "" {
		return nil
	}
	return &Message{
		Type:      msgType,
		SimTime:   event.SimTime,
		Timestamp: event.Timestamp,
		VMID:      event.VMID,
		Severity:  string(event.Severity),
		Message:   event.Message,
		Data:      event.Data,
	}
}

func messageType(t models.EventType) string {
	switch t {
	case models.EventTypeTickEvaluated:
		return "evaluation"
	case models.EventTypeVMAdded, models.EventTypeCPUGrown, models.EventTypeRAMGrown:
		return "scaling_action"
	case models.EventTypeScalingFailed:
		return "scaling_failed"
	case models.EventTypeVMPlaced:
		return "vm_update"
	case models.EventTypePredictionFallback:
		return "alert"
	case models.EventTypeSimulationFinished:
		return "finished"
	case models.EventTypeError:
		return "error"
	default:
		return ""
	}
}
