package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(databaseDriverEnv, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("expected sqlite default, got %s", cfg.Database.Driver)
	}
	if cfg.Scoring.PromptVersion != "v3" || cfg.Scoring.Mode != "tri-model-daily" {
		t.Fatalf("unexpected scoring defaults %+v", cfg.Scoring)
	}
	if cfg.Scoring.Thresholds.HighSpread != 10 || cfg.Scoring.Thresholds.ModerateSpread != 20 {
		t.Fatalf("unexpected thresholds %+v", cfg.Scoring.Thresholds)
	}
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("expected UTC, got %s", cfg.Scheduler.Location())
	}
	if cfg.Gating.Enabled || cfg.Gating.AuditRate != 0.02 {
		t.Fatalf("gating should be off with a 2%% audit rate: %+v", cfg.Gating)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := strings.Join([]string{
		"database:",
		"  driver: Postgres",
		"  dsn: postgres://file",
		"scheduler:",
		"  timezone: Europe/Berlin",
		"scoring:",
		"  workers: 0",
		"  topK: 10",
		"  retryUnscoredOnResume: true",
		"  retry:",
		"    maxAttempts: 3",
		"    timeout: 45s",
		"reviewers:",
		"  openai:",
		"    enabled: true",
	}, "\n")
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://env")
	t.Setenv(databaseDriverEnv, "")
	t.Setenv(openAIKeyEnv, "sk-test")
	t.Setenv(logLevelEnv, "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.DSN != "postgres://env" {
		t.Fatalf("database not overridden: %+v", cfg.Database)
	}
	if cfg.Scoring.Workers != 1 {
		t.Fatalf("workers should be clamped to 1, got %d", cfg.Scoring.Workers)
	}
	if cfg.Scoring.TopK != 10 || !cfg.Scoring.RetryUnscoredOnResume {
		t.Fatalf("scoring not read from file: %+v", cfg.Scoring)
	}
	if cfg.Scoring.Retry.MaxAttempts != 3 || cfg.Scoring.Retry.Timeout != 45*time.Second {
		t.Fatalf("retry not read from file: %+v", cfg.Scoring.Retry)
	}
	if cfg.Scoring.Retry.BaseBackoff != 500*time.Millisecond {
		t.Fatalf("unset retry fields should keep defaults, got %v", cfg.Scoring.Retry.BaseBackoff)
	}
	if !cfg.Reviewers.OpenAI.Enabled || cfg.Reviewers.OpenAI.APIKey != "sk-test" {
		t.Fatalf("openai reviewer not configured: %+v", cfg.Reviewers.OpenAI)
	}
	if cfg.Reviewers.OpenAI.Model != "gpt-4o-mini" {
		t.Fatalf("default model lost: %s", cfg.Reviewers.OpenAI.Model)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("log level not overridden: %s", cfg.Logging.Level)
	}
	if cfg.Scheduler.Location().String() != "Europe/Berlin" {
		t.Fatalf("unexpected location %s", cfg.Scheduler.Location())
	}
	if len(cfg.Sites) == 0 {
		t.Fatal("default sites should be kept")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(databaseDriverEnv, "mysql")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(databaseDriverEnv, "")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadGatingSection(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(databaseDriverEnv, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := strings.Join([]string{
		"gating:",
		"  enabled: true",
		"  auditRate: 0.1",
		"  auditSeed: 42",
		"  keywordsFile: keywords.txt",
		"  venueWhitelist:",
		"    - lancet",
		"    - medrxiv",
	}, "\n")
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	g := cfg.Gating
	if !g.Enabled || g.AuditRate != 0.1 || g.AuditSeed != 42 || g.KeywordsFile != "keywords.txt" {
		t.Fatalf("gating not read from file: %+v", g)
	}
	if len(g.VenueWhitelist) != 2 || g.VenueWhitelist[1] != "medrxiv" {
		t.Fatalf("unexpected venue whitelist %v", g.VenueWhitelist)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("gating:\n  auditRate: 2\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatal("expected error for audit rate above 1")
	}
}
