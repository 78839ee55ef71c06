package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/vm-autoscaler/internal/events"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

func receive(t *testing.T, ch <-chan *models.Event) *models.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()

	added := bus.Subscribe(models.EventTypeVMAdded)
	all := bus.SubscribeAll()

	pub := events.NewPublisher(bus)
	pub.ScalingAction(3, models.ScalingAction{Kind: models.ActionGrowRAM, VMID: 1, Requested: 512, Applied: 512})
	pub.ScalingAction(3, models.ScalingAction{Kind: models.ActionAddVM, VMID: 0})

	e := receive(t, added)
	assert.Equal(t, models.EventTypeVMAdded, e.Type)
	require.NotNil(t, e.VMID)
	assert.Equal(t, 0, *e.VMID)

	assert.Equal(t, models.EventTypeRAMGrown, receive(t, all).Type)
	assert.Equal(t, models.EventTypeVMAdded, receive(t, all).Type)
	assert.Empty(t, added)
}

func TestEventBus_PublishNeverBlocks(t *testing.T) {
	bus := events.NewEventBus(1)
	defer bus.Close()
	_ = bus.SubscribeAll()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.Publish(models.NewEvent(models.EventTypeError, float64(i), "x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, 4, bus.Dropped())
}

func TestEventBus_CloseClosesChannels(t *testing.T) {
	bus := events.NewEventBus(4)
	typed := bus.Subscribe(models.EventTypeError, models.EventTypeVMAdded)
	all := bus.SubscribeAll()
	bus.Close()
	bus.Close()

	_, ok := <-typed
	assert.False(t, ok)
	_, ok = <-all
	assert.False(t, ok)

	bus.Publish(models.NewEvent(models.EventTypeError, 0, "ignored"))
	late := bus.SubscribeAll()
	_, ok = <-late
	assert.False(t, ok)
}

func TestPublisher_ScalingActionSeverity(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	all := bus.SubscribeAll()
	pub := events.NewPublisher(bus).WithTraceID("trace-1")

	pub.ScalingAction(2, models.ScalingAction{Kind: models.ActionGrowCPU, VMID: 0, Requested: 1, Applied: 0})
	pub.ScalingAction(2, models.ScalingAction{Kind: models.ActionGrowCPU, VMID: 0, Requested: 1, Error: "no capacity"})
	pub.PredictionFallback(models.Prediction{VMID: 1, Time: 2, Source: models.SourceFallback})

	clamped := receive(t, all)
	assert.Equal(t, models.EventTypeCPUGrown, clamped.Type)
	assert.Equal(t, models.SeverityWarning, clamped.Severity)
	assert.Equal(t, "trace-1", clamped.TraceID)

	failed := receive(t, all)
	assert.Equal(t, models.EventTypeScalingFailed, failed.Type)
	assert.Equal(t, models.SeverityCritical, failed.Severity)

	fallback := receive(t, all)
	assert.Equal(t, models.EventTypePredictionFallback, fallback.Type)
	assert.Equal(t, 2.0, fallback.SimTime)
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var pub *events.Publisher
	assert.NotPanics(t, func() {
		pub.TickEvaluated(models.NewEvaluation(1))
	})
}

type memoryStore struct {
	mu          sync.Mutex
	evaluations []*models.Evaluation
	events      []*models.Event
	failEvents  bool
}

func (s *memoryStore) SaveEvaluation(_ context.Context, eval *models.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluations = append(s.evaluations, eval)
	return nil
}

func (s *memoryStore) SaveEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEvents {
		return errors.New("insert failed")
	}
	s.events = append(s.events, event)
	return nil
}

func TestEventLogger_PersistsEvaluationsAndEvents(t *testing.T) {
	bus := events.NewEventBus(10)
	store := &memoryStore{}
	el := events.NewEventLogger(store, bus.SubscribeAll())
	el.Start()

	pub := events.NewPublisher(bus)
	eval := models.NewEvaluation(1)
	pub.TickEvaluated(eval)
	pub.ScalingAction(1, models.ScalingAction{Kind: models.ActionAddVM, VMID: 0})
	pub.SimulationFinished(10, models.FleetSummary{TotalVMs: 3})

	bus.Close()
	<-el.Done()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.evaluations, 1)
	assert.Equal(t, eval.ID, store.evaluations[0].ID)
	require.Len(t, store.events, 2)
	assert.Equal(t, models.EventTypeVMAdded, store.events[0].Type)
	assert.Equal(t, models.EventTypeSimulationFinished, store.events[1].Type)
}

func TestEventLogger_StoreErrorsDoNotStopLoop(t *testing.T) {
	bus := events.NewEventBus(10)
	store := &memoryStore{failEvents: true}
	el := events.NewEventLogger(store, bus.SubscribeAll())
	el.Start()

	pub := events.NewPublisher(bus)
	pub.Error(1, "boom", errors.New("x"))
	pub.TickEvaluated(models.NewEvaluation(2))

	bus.Close()
	<-el.Done()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.evaluations, 1)
}

func TestEventLogger_StopWithoutStore(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	el := events.NewEventLogger(nil, bus.SubscribeAll())
	el.Start()
	events.NewPublisher(bus).Error(0, "no store", errors.New("x"))
	el.Stop()
}
