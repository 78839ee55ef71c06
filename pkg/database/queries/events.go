package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Insert(ctx context.Context, event *models.Event) error {
	var data []byte
	if event.Data != nil {
		var err error
		data, err = json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, type, severity, vm_id, sim_time, timestamp, message, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, string(event.Type), string(event.Severity), event.VMID,
		event.SimTime, event.Timestamp, event.Message, data,
	)
	return err
}

func (r *EventRepository) GetRecent(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, severity, vm_id, sim_time, timestamp, message, data
		FROM events
		ORDER BY timestamp DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var vmID sql.NullInt64
		var data []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Severity, &vmID, &e.SimTime, &e.Timestamp, &e.Message, &data); err != nil {
			return nil, err
		}
		if vmID.Valid {
			id := int(vmID.Int64)
			e.VMID = &id
		}
		if len(data) > 0 {
			var payload interface{}
			if err := json.Unmarshal(data, &payload); err == nil {
				e.Data = payload
			}
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
