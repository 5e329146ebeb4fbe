package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"logo-forge/internal/models"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS workflow_jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		options TEXT NOT NULL,
		total_tasks INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS workflow_tasks (
		job_id TEXT NOT NULL REFERENCES workflow_jobs(id),
		task_index INTEGER NOT NULL,
		model TEXT NOT NULL,
		prompt_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		status TEXT NOT NULL,
		files TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		finished_at TEXT NOT NULL,
		PRIMARY KEY (job_id, task_index)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_jobs_created ON workflow_jobs(created_at);`,
}

type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating when needed) the ledger database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	for _, query := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

func (s *SQLite) SaveJob(ctx context.Context, job models.BatchJob) error {
	options, err := encodeJSON(job.Options)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO workflow_jobs (id, status, options, total_tasks, succeeded, failed, error_message, created_at, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		succeeded = excluded.succeeded,
		failed = excluded.failed,
		error_message = excluded.error_message,
		started_at = excluded.started_at,
		finished_at = excluded.finished_at
	`
	_, err = s.db.ExecContext(ctx, query,
		job.ID, string(job.Status), options, job.TotalTasks, job.Succeeded, job.Failed, job.Error,
		job.CreatedAt.UTC().Format(time.RFC3339Nano), formatTime(job.StartedAt), formatTime(job.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLite) RecordTask(ctx context.Context, jobID string, r models.TaskResult) error {
	files, err := encodeJSON(r.Files)
	if err != nil {
		return err
	}
	query := `
	INSERT OR REPLACE INTO workflow_tasks (job_id, task_index, model, prompt_id, provider, status, files, error_message, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		jobID, r.TaskIndex, r.Model, r.PromptID, r.Provider, string(r.Status), files, r.Error,
		r.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record task %d of %s: %w", r.TaskIndex, jobID, err)
	}
	return nil
}

const sqliteJobColumns = `id, status, options, total_tasks, succeeded, failed, error_message, created_at, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row rowScanner) (models.BatchJob, error) {
	var (
		job                   models.BatchJob
		status, options       string
		createdAt             string
		startedAt, finishedAt sql.NullString
	)
	if err := row.Scan(&job.ID, &status, &options, &job.TotalTasks, &job.Succeeded, &job.Failed,
		&job.Error, &createdAt, &startedAt, &finishedAt); err != nil {
		return job, err
	}
	job.Status = models.JobStatus(status)
	if err := json.Unmarshal([]byte(options), &job.Options); err != nil {
		return job, fmt.Errorf("decode options of %s: %w", job.ID, err)
	}
	job.CreatedAt = parseTime(createdAt)
	if startedAt.Valid {
		t := parseTime(startedAt.String)
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		job.FinishedAt = &t
	}
	return job, nil
}

func (s *SQLite) GetJob(ctx context.Context, id string) (models.BatchJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteJobColumns+` FROM workflow_jobs WHERE id = ?`, id)
	job, err := scanSQLiteJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.BatchJob{}, notFound(id)
		}
		return models.BatchJob{}, fmt.Errorf("get job %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT task_index, model, prompt_id, provider, status, files, error_message, finished_at
	FROM workflow_tasks
	WHERE job_id = ?
	ORDER BY task_index
	`, id)
	if err != nil {
		return job, fmt.Errorf("list tasks of %s: %w", id, err)
	}
	defer rows.Close()

	job.Results = []models.TaskResult{}
	for rows.Next() {
		var (
			r                        models.TaskResult
			status, files, finishedAt string
		)
		if err := rows.Scan(&r.TaskIndex, &r.Model, &r.PromptID, &r.Provider, &status, &files, &r.Error, &finishedAt); err != nil {
			return job, err
		}
		r.Status = models.TaskStatus(status)
		if err := json.Unmarshal([]byte(files), &r.Files); err != nil {
			return job, fmt.Errorf("decode files of task %d: %w", r.TaskIndex, err)
		}
		r.FinishedAt = parseTime(finishedAt)
		job.Results = append(job.Results, r)
	}
	return job, rows.Err()
}

func (s *SQLite) ListJobs(ctx context.Context, limit int) ([]models.BatchJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteJobColumns+` FROM workflow_jobs ORDER BY created_at DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.BatchJob{}
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
