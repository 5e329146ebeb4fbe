package main

import (
	"context"
	"log"
	"time"

	"logo-forge/internal/config"
	"logo-forge/internal/history"
)

func main() {
	log.Println("Starting migration runner...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.HistoryDriver == "none" || cfg.HistoryDriver == "" {
		log.Println("History ledger disabled, nothing to migrate.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Printf("Opening %s history ledger", cfg.HistoryDriver)
	recorder, err := history.Open(ctx, cfg.HistoryDriver, cfg.SQLitePath, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer recorder.Close()

	// Open creates the tables; Migrate is idempotent.
	if m, ok := recorder.(interface{ Migrate(context.Context) error }); ok {
		if err := m.Migrate(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	log.Println("Migration runner finished successfully.")
}
