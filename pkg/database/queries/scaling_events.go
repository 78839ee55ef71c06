package queries

import (
	"context"
	"database/sql"

	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

type ScalingEventRepository struct {
	db *sql.DB
}

func NewScalingEventRepository(db *sql.DB) *ScalingEventRepository {
	return &ScalingEventRepository{db: db}
}

const scalingEventColumns = `id, evaluation_id, sim_time, timestamp, kind, vm_id, new_vm_id,
			   predicted, requested, applied, status, COALESCE(reason, '')`

func (r *ScalingEventRepository) GetByVM(ctx context.Context, vmID, limit int) ([]models.ScalingEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + scalingEventColumns + `
		FROM scaling_events
		WHERE vm_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, vmID, limit)
	if err != nil {
		return nil, err
	}
	return scanScalingEvents(rows)
}

func (r *ScalingEventRepository) GetRecent(ctx context.Context, limit int) ([]models.ScalingEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + scalingEventColumns + `
		FROM scaling_events
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return scanScalingEvents(rows)
}

type ScalingStats struct {
	Kind    string `json:"kind"`
	Total   int    `json:"total"`
	Clamped int    `json:"clamped"`
	Failed  int    `json:"failed"`
}

func (r *ScalingEventRepository) GetStats(ctx context.Context) ([]ScalingStats, error) {
	query := `
		SELECT kind,
			   COUNT(*),
			   COUNT(*) FILTER (WHERE status = 'clamped'),
			   COUNT(*) FILTER (WHERE status = 'failed')
		FROM scaling_events
		GROUP BY kind
		ORDER BY kind`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ScalingStats
	for rows.Next() {
		var s ScalingStats
		if err := rows.Scan(&s.Kind, &s.Total, &s.Clamped, &s.Failed); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func scanScalingEvents(rows *sql.Rows) ([]models.ScalingEvent, error) {
	defer rows.Close()

	var events []models.ScalingEvent
	for rows.Next() {
		var e models.ScalingEvent
		var newVMID sql.NullInt64
		err := rows.Scan(
			&e.ID, &e.EvaluationID, &e.SimTime, &e.Timestamp, &e.Kind, &e.VMID, &newVMID,
			&e.Predicted, &e.Requested, &e.Applied, &e.Status, &e.Reason,
		)
		if err != nil {
			return nil, err
		}
		if newVMID.Valid {
			id := int(newVMID.Int64)
			e.NewVMID = &id
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
