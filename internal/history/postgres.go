package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"logo-forge/internal/models"
	"logo-forge/pkg/database/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database at url and ensures the ledger tables exist.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := postgres.NewClient(ctx, url)
	if err != nil {
		return nil, err
	}
	p := &Postgres{pool: pool}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	return postgres.RunMigrations(ctx, p.pool)
}

func (p *Postgres) SaveJob(ctx context.Context, job models.BatchJob) error {
	options, err := encodeJSON(job.Options)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO workflow_jobs (id, status, options, total_tasks, succeeded, failed, error_message, created_at, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		succeeded = EXCLUDED.succeeded,
		failed = EXCLUDED.failed,
		error_message = EXCLUDED.error_message,
		started_at = EXCLUDED.started_at,
		finished_at = EXCLUDED.finished_at
	`
	_, err = p.pool.Exec(ctx, query,
		job.ID, string(job.Status), options, job.TotalTasks, job.Succeeded, job.Failed, job.Error,
		job.CreatedAt, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (p *Postgres) RecordTask(ctx context.Context, jobID string, r models.TaskResult) error {
	files, err := encodeJSON(r.Files)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO workflow_tasks (job_id, task_index, model, prompt_id, provider, status, files, error_message, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (job_id, task_index) DO UPDATE SET
		status = EXCLUDED.status,
		files = EXCLUDED.files,
		error_message = EXCLUDED.error_message,
		finished_at = EXCLUDED.finished_at
	`
	_, err = p.pool.Exec(ctx, query,
		jobID, r.TaskIndex, r.Model, r.PromptID, r.Provider, string(r.Status), files, r.Error, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record task %d of %s: %w", r.TaskIndex, jobID, err)
	}
	return nil
}

const pgJobColumns = `id::text, status, options, total_tasks, succeeded, failed, error_message, created_at, started_at, finished_at`

func scanPostgresJob(row pgx.Row) (models.BatchJob, error) {
	var (
		job     models.BatchJob
		status  string
		options []byte
	)
	if err := row.Scan(&job.ID, &status, &options, &job.TotalTasks, &job.Succeeded, &job.Failed,
		&job.Error, &job.CreatedAt, &job.StartedAt, &job.FinishedAt); err != nil {
		return job, err
	}
	job.Status = models.JobStatus(status)
	if err := json.Unmarshal(options, &job.Options); err != nil {
		return job, fmt.Errorf("decode options of %s: %w", job.ID, err)
	}
	return job, nil
}

func (p *Postgres) GetJob(ctx context.Context, id string) (models.BatchJob, error) {
	job, err := scanPostgresJob(p.pool.QueryRow(ctx, `SELECT `+pgJobColumns+` FROM workflow_jobs WHERE id::text = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.BatchJob{}, notFound(id)
		}
		return models.BatchJob{}, fmt.Errorf("get job %s: %w", id, err)
	}

	rows, err := p.pool.Query(ctx, `
	SELECT task_index, model, prompt_id, provider, status, files, error_message, finished_at
	FROM workflow_tasks
	WHERE job_id::text = $1
	ORDER BY task_index
	`, id)
	if err != nil {
		return job, fmt.Errorf("list tasks of %s: %w", id, err)
	}
	defer rows.Close()

	job.Results = []models.TaskResult{}
	for rows.Next() {
		var (
			r      models.TaskResult
			status string
			files  []byte
		)
		if err := rows.Scan(&r.TaskIndex, &r.Model, &r.PromptID, &r.Provider, &status, &files, &r.Error, &r.FinishedAt); err != nil {
			return job, err
		}
		r.Status = models.TaskStatus(status)
		if err := json.Unmarshal(files, &r.Files); err != nil {
			return job, fmt.Errorf("decode files of task %d: %w", r.TaskIndex, err)
		}
		job.Results = append(job.Results, r)
	}
	return job, rows.Err()
}

func (p *Postgres) ListJobs(ctx context.Context, limit int) ([]models.BatchJob, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgJobColumns+` FROM workflow_jobs ORDER BY created_at DESC LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.BatchJob{}
	for rows.Next() {
		job, err := scanPostgresJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
