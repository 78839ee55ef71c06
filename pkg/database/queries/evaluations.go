package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/vm-autoscaler/pkg/database"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

type EvaluationRepository struct {
	db *sql.DB
}

func NewEvaluationRepository(db *sql.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

type EvaluationRecord struct {
	ID                string    `json:"id"`
	SimTime           float64   `json:"sim_time"`
	EvaluatedAt       time.Time `json:"evaluated_at"`
	FinishedWorkloads int       `json:"finished_workloads"`
	TotalVMs          int       `json:"total_vms"`
	AllocatedVMs      int       `json:"allocated_vms"`
	FallbackCount     int       `json:"fallback_count"`
}

// Save stores the evaluation with its predictions and scaling actions in one transaction.
func (r *EvaluationRepository) Save(ctx context.Context, eval *models.Evaluation) error {
	return database.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO evaluations
				(id, sim_time, evaluated_at, finished_workloads, total_vms, allocated_vms, fallback_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			eval.ID, eval.Time, eval.EvaluatedAt,
			eval.Summary.FinishedWorkloads, eval.Summary.TotalVMs, eval.Summary.AllocatedVMs,
			eval.FallbackCount(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert evaluation: %w", err)
		}

		for _, p := range eval.Predictions {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO predictions (evaluation_id, vm_id, cpu, ram, bw, source, cause)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				eval.ID, p.VMID, p.CPU, p.RAM, p.BW, string(p.Source), nullString(p.Cause),
			)
			if err != nil {
				return fmt.Errorf("failed to insert prediction for vm %d: %w", p.VMID, err)
			}
		}

		for _, a := range eval.Actions {
			e := models.NewScalingEvent(eval, a)
			_, err = tx.ExecContext(ctx, `
				INSERT INTO scaling_events
					(evaluation_id, sim_time, timestamp, kind, vm_id, new_vm_id, predicted, requested, applied, status, reason)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				e.EvaluationID, e.SimTime, e.Timestamp, string(e.Kind), e.VMID, e.NewVMID,
				e.Predicted, e.Requested, e.Applied, string(e.Status), nullString(e.Reason),
			)
			if err != nil {
				return fmt.Errorf("failed to insert scaling event for vm %d: %w", a.VMID, err)
			}
		}
		return nil
	})
}

func (r *EvaluationRepository) GetLatest(ctx context.Context) (*EvaluationRecord, error) {
	query := `
		SELECT id, sim_time, evaluated_at, finished_workloads, total_vms, allocated_vms, fallback_count
		FROM evaluations
		ORDER BY sim_time DESC
		LIMIT 1`

	var e EvaluationRecord
	err := r.db.QueryRowContext(ctx, query).Scan(
		&e.ID, &e.SimTime, &e.EvaluatedAt,
		&e.FinishedWorkloads, &e.TotalVMs, &e.AllocatedVMs, &e.FallbackCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EvaluationRepository) GetRange(ctx context.Context, from, to float64, limit int) ([]EvaluationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, sim_time, evaluated_at, finished_workloads, total_vms, allocated_vms, fallback_count
		FROM evaluations
		WHERE sim_time >= $1 AND sim_time <= $2
		ORDER BY sim_time DESC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EvaluationRecord
	for rows.Next() {
		var e EvaluationRecord
		if err := rows.Scan(
			&e.ID, &e.SimTime, &e.EvaluatedAt,
			&e.FinishedWorkloads, &e.TotalVMs, &e.AllocatedVMs, &e.FallbackCount,
		); err != nil {
			return nil, err
		}
		records = append(records, e)
	}

	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
