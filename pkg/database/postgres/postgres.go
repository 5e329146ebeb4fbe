package postgres

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewClient(ctx context.Context, connectionString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Ping to verify connection using a short timeout context
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return pool, nil
}

// RunMigrations creates the workflow history tables if they don't exist
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS workflow_jobs (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			options JSONB NOT NULL,
			total_tasks INTEGER NOT NULL DEFAULT 0,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			started_at TIMESTAMP WITH TIME ZONE,
			finished_at TIMESTAMP WITH TIME ZONE
		);`,
		`CREATE TABLE IF NOT EXISTS workflow_tasks (
			job_id UUID NOT NULL REFERENCES workflow_jobs(id) ON DELETE CASCADE,
			task_index INTEGER NOT NULL,
			model TEXT NOT NULL,
			prompt_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			status TEXT NOT NULL,
			files JSONB NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			finished_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (job_id, task_index)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_jobs_created ON workflow_jobs(created_at DESC);`,
	}
	for _, query := range queries {
		if _, err := pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to create workflow tables: %w", err)
		}
	}
	log.Println("Migrations executed successfully")
	return nil
}
