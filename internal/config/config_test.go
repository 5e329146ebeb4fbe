package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("LOGS_DIR", "var/logs")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != 5000 {
		t.Fatalf("expected default port 5000, got %d", cfg.Port)
	}
	if cfg.ProgressFile != filepath.Join("var/logs", "progress.json") {
		t.Fatalf("unexpected progress file: %s", cfg.ProgressFile)
	}
	if cfg.SQLitePath != filepath.Join("var/logs", "history.db") {
		t.Fatalf("unexpected sqlite path: %s", cfg.SQLitePath)
	}
	if len(cfg.ICOSizes) != 6 || cfg.ICOSizes[0] != 16 || cfg.ICOSizes[5] != 256 {
		t.Fatalf("unexpected ico sizes: %v", cfg.ICOSizes)
	}
	if cfg.ProviderTimeout != 120*time.Second {
		t.Fatalf("unexpected provider timeout: %s", cfg.ProviderTimeout)
	}
	if !cfg.RemoveBackground || !cfg.CreateICO {
		t.Fatalf("expected post-processing enabled by default")
	}
	if cfg.JWKSURL() != "" {
		t.Fatalf("expected auth disabled without keycloak url")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("MAX_WORKERS", "0")
	t.Setenv("ICO_SIZES", "16,32")
	t.Setenv("KEYCLOAK_URL", "http://kc:8080")
	t.Setenv("KEYCLOAK_REALM", "logos")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MaxWorkers != 1 {
		t.Fatalf("expected max workers clamped to 1, got %d", cfg.MaxWorkers)
	}
	if len(cfg.ICOSizes) != 2 {
		t.Fatalf("expected two ico sizes, got %v", cfg.ICOSizes)
	}
	want := "http://kc:8080/realms/logos/protocol/openid-connect/certs"
	if cfg.JWKSURL() != want {
		t.Fatalf("expected %s, got %s", want, cfg.JWKSURL())
	}
}
