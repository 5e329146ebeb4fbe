// Package history keeps a ledger of batch jobs and their per-task outcomes.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"logo-forge/internal/apperr"
	"logo-forge/internal/models"
)

const defaultListLimit = 50

type Recorder interface {
	// SaveJob inserts or updates the job header.
	SaveJob(ctx context.Context, job models.BatchJob) error
	RecordTask(ctx context.Context, jobID string, result models.TaskResult) error
	// GetJob returns the header with its recorded task results.
	GetJob(ctx context.Context, id string) (models.BatchJob, error)
	// ListJobs returns headers only, newest first.
	ListJobs(ctx context.Context, limit int) ([]models.BatchJob, error)
	Close() error
}

// Nop discards everything; lookups report not found.
type Nop struct{}

func (Nop) SaveJob(context.Context, models.BatchJob) error            { return nil }
func (Nop) RecordTask(context.Context, string, models.TaskResult) error { return nil }
func (Nop) GetJob(_ context.Context, id string) (models.BatchJob, error) {
	return models.BatchJob{}, notFound(id)
}
func (Nop) ListJobs(context.Context, int) ([]models.BatchJob, error) { return []models.BatchJob{}, nil }
func (Nop) Close() error                                              { return nil }

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode history column: %w", err)
	}
	return string(b), nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func notFound(id string) error {
	return apperr.NotFound("workflow %s", id)
}

// Open selects the ledger backend named by driver: sqlite, postgres or none.
func Open(ctx context.Context, driver, sqlitePath, postgresURL string) (Recorder, error) {
	switch driver {
	case "none", "":
		return Nop{}, nil
	case "postgres":
		if postgresURL == "" {
			return nil, fmt.Errorf("history driver postgres requires POSTGRES_URL")
		}
		return OpenPostgres(ctx, postgresURL)
	case "sqlite":
		return OpenSQLite(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown history driver %q", driver)
	}
}
