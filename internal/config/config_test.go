package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("IMPORT_PAGE_SIZE", "")
	t.Setenv("IMPORT_RETRY_INITIAL", "")
	t.Setenv("WORKER_CONCURRENCY", "")
	t.Setenv("PROGRESS_RETENTION", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ImportPageSize != 30 {
		t.Fatalf("expected default page size 30, got %d", cfg.ImportPageSize)
	}
	if cfg.ImportRetryInitial != 2*time.Second {
		t.Fatalf("expected default retry initial 2s, got %v", cfg.ImportRetryInitial)
	}
	if cfg.ImportRetryMaxAttempts != 5 {
		t.Fatalf("expected default retry attempts 5, got %d", cfg.ImportRetryMaxAttempts)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Fatalf("expected default worker concurrency 4, got %d", cfg.WorkerConcurrency)
	}
	if cfg.ProgressRetention != time.Hour {
		t.Fatalf("expected default retention 1h, got %v", cfg.ProgressRetention)
	}
	if cfg.NATSJobSubject != "tickets.jobs" {
		t.Fatalf("expected default job subject, got %q", cfg.NATSJobSubject)
	}
}

func TestLoadParsesEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("IMPORT_PAGE_SIZE", "50")
	t.Setenv("IMPORT_RETRY_INITIAL", "500ms")
	t.Setenv("ENRICHMENT_RATE_PER_SEC", "3.5")
	t.Setenv("ANALYSIS_MAX_SUGGESTIONS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ImportPageSize != 50 {
		t.Fatalf("expected page size 50, got %d", cfg.ImportPageSize)
	}
	if cfg.ImportRetryInitial != 500*time.Millisecond {
		t.Fatalf("expected retry initial 500ms, got %v", cfg.ImportRetryInitial)
	}
	if cfg.EnrichmentRatePerSec != 3.5 {
		t.Fatalf("expected enrichment rate 3.5, got %v", cfg.EnrichmentRatePerSec)
	}
	if cfg.AnalysisMaxSuggestions != 5 {
		t.Fatalf("expected 5 max suggestions, got %d", cfg.AnalysisMaxSuggestions)
	}
}

func TestLoadAppliesFileThenEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("api_port: \"9999\"\nimport_page_size: 10\nnats_url: nats://broker:4222\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("IMPORT_PAGE_SIZE", "77")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "9999" {
		t.Fatalf("expected file port, got %q", cfg.APIPort)
	}
	if cfg.NATSURL != "nats://broker:4222" {
		t.Fatalf("expected file nats url, got %q", cfg.NATSURL)
	}
	// Env overrides the file value.
	if cfg.ImportPageSize != 77 {
		t.Fatalf("expected env to win over file, got %d", cfg.ImportPageSize)
	}
}

func TestLoadRejectsBrokenConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":::not yaml"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
