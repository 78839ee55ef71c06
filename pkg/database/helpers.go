package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type TxFunc func(tx *sql.Tx) error

// RunInTx commits when fn succeeds and rolls back otherwise.
func RunInTx(ctx context.Context, db *sql.DB, fn TxFunc) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) WithTransaction(ctx context.Context, fn TxFunc) error {
	return RunInTx(ctx, db.DB, fn)
}

type HealthStatus struct {
	Healthy         bool          `json:"healthy"`
	Latency         time.Duration `json:"latency"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Error           string        `json:"error,omitempty"`
}

// Health pings the database and reports pool usage.
func (db *DB) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	err := db.PingContext(ctx)
	stats := db.Stats()

	status := HealthStatus{
		Healthy:         err == nil,
		Latency:         time.Since(start),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}
