package run

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/config"
	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
)

func TestGetenvDefault(t *testing.T) {
	t.Setenv("KLD_TEST_VAR", "env_value")
	if got := getenvDefault("KLD_TEST_VAR", "default"); got != "env_value" {
		t.Errorf("getenvDefault = %s", got)
	}
	if got := getenvDefault("KLD_TEST_VAR_NOT_SET", "default"); got != "default" {
		t.Errorf("getenvDefault = %s", got)
	}
}

func TestDataDirFallback(t *testing.T) {
	opts := Options{DataDir: ""}
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.DataDir == "" {
		t.Fatal("DataDir should not be empty after fallback")
	}
	if !filepath.IsAbs(opts.DataDir) && !filepath.HasPrefix(opts.DataDir, "./") {
		t.Errorf("DataDir should be absolute or start with ./, got %s", opts.DataDir)
	}
}

// TestRunIntegration verifies Run starts and shuts down cleanly. Minimal by
// design since Run binds a listener and spawns the worker loops.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	opts := Options{
		DataDir:  t.TempDir(),
		HTTPAddr: ":0",
		Fsync:    pebblestore.FsyncModeNever,
		Config:   cfgpkg.Default(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := Run(ctx, opts); err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}
