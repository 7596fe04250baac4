package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  port: 9000
  read_timeout: 5s
catalog:
  nft_budget_percent: 40
  drift_tolerance: 0.05
jackpot:
  base_chance: 0.002
logging:
  level: warn
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Environment != "production" {
		t.Errorf("expected production, got %s", cfg.Environment)
	}
	if !cfg.IsProduction() || cfg.IsDevelopment() {
		t.Error("environment helpers disagree with the loaded value")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected read timeout 5s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Catalog.NFTBudgetPercent != 40 {
		t.Errorf("expected budget 40, got %v", cfg.Catalog.NFTBudgetPercent)
	}
	if cfg.Catalog.DriftTolerance != 0.05 {
		t.Errorf("expected tolerance 0.05, got %v", cfg.Catalog.DriftTolerance)
	}
	if cfg.Jackpot.BaseChance != 0.002 {
		t.Errorf("expected base chance 0.002, got %v", cfg.Jackpot.BaseChance)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %s", cfg.Logging.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "environment: development\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "rewards.db" {
		t.Errorf("expected sqlite defaults, got %s %s", cfg.Database.Driver, cfg.Database.DSN)
	}
	if cfg.Catalog.NFTBudgetPercent != 50 {
		t.Errorf("expected default budget 50, got %v", cfg.Catalog.NFTBudgetPercent)
	}
	if cfg.Catalog.DriftTolerance != 0.01 {
		t.Errorf("expected default tolerance 0.01, got %v", cfg.Catalog.DriftTolerance)
	}
	if cfg.Jackpot.BaseChance != 0.001 {
		t.Errorf("expected default base chance 0.001, got %v", cfg.Jackpot.BaseChance)
	}
	if cfg.Jackpot.BroadcastInterval != 2*time.Second {
		t.Errorf("expected default broadcast interval 2s, got %v", cfg.Jackpot.BroadcastInterval)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected logging defaults, got %s %s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
