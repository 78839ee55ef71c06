package events

import (
	"context"
	"database/sql"
	"time"

	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/pkg/database/queries"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// Store persists what the EventLogger sees.
type Store interface {
	SaveEvaluation(ctx context.Context, eval *models.Evaluation) error
	SaveEvent(ctx context.Context, event *models.Event) error
}

// DBStore writes evaluations and events to postgres.
type DBStore struct {
	evaluations *queries.EvaluationRepository
	events      *queries.EventRepository
}

func NewDBStore(db *sql.DB) *DBStore {
	return &DBStore{
		evaluations: queries.NewEvaluationRepository(db),
		events:      queries.NewEventRepository(db),
	}
}

func (s *DBStore) SaveEvaluation(ctx context.Context, eval *models.Evaluation) error {
	return s.evaluations.Save(ctx, eval)
}

func (s *DBStore) SaveEvent(ctx context.Context, event *models.Event) error {
	return s.events.Insert(ctx, event)
}

// EventLogger logs every event by severity and hands it to the store, if any.
type EventLogger struct {
	store        Store
	eventChan    <-chan *models.Event
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewEventLogger(store Store, eventChan <-chan *models.Event) *EventLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLogger{
		store:        store,
		eventChan:    eventChan,
		writeTimeout: 5 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

func (l *EventLogger) Start() {
	go l.run()
}

// Stop ends the loop and waits for it to exit.
func (l *EventLogger) Stop() {
	l.cancel()
	<-l.done
}

// Done is closed once the event channel is drained or Stop was called.
func (l *EventLogger) Done() <-chan struct{} {
	return l.done
}

func (l *EventLogger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.eventChan:
			if !ok {
				return
			}
			l.processEvent(event)
		}
	}
}

func (l *EventLogger) processEvent(event *models.Event) {
	fields := map[string]interface{}{
		"event_type": event.Type,
		"severity":   event.Severity,
		"sim_time":   event.SimTime,
	}
	if event.VMID != nil {
		fields["vm_id"] = *event.VMID
	}
	if event.TraceID != "" {
		fields["trace_id"] = event.TraceID
	}
	entry := logger.WithFields(fields)

	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(event.Message)
	case models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Debug(event.Message)
	}

	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(l.ctx, l.writeTimeout)
	defer cancel()

	if event.Type == models.EventTypeTickEvaluated {
		if eval, ok := event.Data.(*models.Evaluation); ok {
			if err := l.store.SaveEvaluation(ctx, eval); err != nil {
				logger.Errorf("Failed to persist evaluation %s: %v", eval.ID, err)
			}
		}
		return
	}

	if err := l.store.SaveEvent(ctx, event); err != nil {
		logger.Errorf("Failed to persist event %s: %v", event.Type, err)
	}
}
