// Package store persists job status, progress logs and research results.
package store

import (
	"context"
	"fmt"

	"research-task-scheduler/internal/models"
)

// ResultStore is the durable record the scheduler and pipeline report to.
type ResultStore interface {
	// SaveJob upserts the job row with its current status, progress and error.
	SaveJob(ctx context.Context, job models.Job) error
	// UpdateProgress stores the latest percentage and appends a log row.
	UpdateProgress(ctx context.Context, update models.ProgressUpdate) error
	AppendLog(ctx context.Context, entry models.LogEntry) error
	// SaveResult writes the result and every article in one transaction.
	SaveResult(ctx context.Context, jobID string, result models.ResearchResult) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, reason string) error
	GetJob(ctx context.Context, jobID string) (models.Job, error)
	GetResult(ctx context.Context, jobID string) (models.ResearchResult, error)
	GetLogs(ctx context.Context, jobID string, limit int) ([]models.LogEntry, error)
	Close()
}

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured backend and applies its migrations.
func Open(ctx context.Context, driver, dsn string) (ResultStore, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverPostgres:
		st, err := NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := st.RunMigrations(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	case DriverSQLite:
		st, err := NewSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := st.RunMigrations(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
