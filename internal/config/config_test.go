package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Streams.MaxDeliveries != 3 {
		t.Fatalf("want default max deliveries 3, got %d", cfg.Streams.MaxDeliveries)
	}
	if cfg.Aggregation.WindowMs != 6_000 || cfg.Aggregation.PollIntervalMs != 500 {
		t.Fatalf("unexpected aggregation defaults: %+v", cfg.Aggregation)
	}
	if cfg.Sync.RetryBaseMs != 2_000 || cfg.Sync.MaxAttempts != 3 {
		t.Fatalf("unexpected sync defaults: %+v", cfg.Sync)
	}
	if cfg.Streams.RetentionMs != 86_400_000 || cfg.Aggregation.RetentionMs != 3_600_000 {
		t.Fatalf("unexpected retention defaults: %d, %d", cfg.Streams.RetentionMs, cfg.Aggregation.RetentionMs)
	}
}

func TestLoadJSONOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	body := `{"aggregation":{"windowMs":2000},"streams":{"maxDeliveries":5}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Aggregation.WindowMs != 2000 {
		t.Fatalf("window not overridden: %d", cfg.Aggregation.WindowMs)
	}
	if cfg.Streams.MaxDeliveries != 5 {
		t.Fatalf("max deliveries not overridden: %d", cfg.Streams.MaxDeliveries)
	}
	// untouched keys keep defaults
	if cfg.Aggregation.PollIntervalMs != 500 {
		t.Fatalf("poll interval should keep default, got %d", cfg.Aggregation.PollIntervalMs)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	body := "sync:\n  indexBaseURL: http://search:7700\n  maxAttempts: 2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sync.IndexBaseURL != "http://search:7700" {
		t.Fatalf("index url not loaded: %q", cfg.Sync.IndexBaseURL)
	}
	if cfg.Sync.MaxAttempts != 2 {
		t.Fatalf("max attempts not loaded: %d", cfg.Sync.MaxAttempts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/cfg.json"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("KLD_AGG_WINDOW_MS", "1234")
	t.Setenv("KLD_MAX_DELIVERIES", "7")
	t.Setenv("KLD_INDEX_BASE_URL", "http://idx:9200")
	t.Setenv("KLD_STREAM_RETENTION_MS", "60000")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.Aggregation.WindowMs != 1234 {
		t.Fatalf("env window: %d", cfg.Aggregation.WindowMs)
	}
	if cfg.Streams.MaxDeliveries != 7 {
		t.Fatalf("env deliveries: %d", cfg.Streams.MaxDeliveries)
	}
	if cfg.Sync.IndexBaseURL != "http://idx:9200" {
		t.Fatalf("env index url: %q", cfg.Sync.IndexBaseURL)
	}
	if cfg.Streams.RetentionMs != 60_000 {
		t.Fatalf("env retention: %d", cfg.Streams.RetentionMs)
	}
}

func TestFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("KLD_MAX_DELIVERIES", "not-a-number")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.Streams.MaxDeliveries != 3 {
		t.Fatalf("garbage env should keep default, got %d", cfg.Streams.MaxDeliveries)
	}
}
