package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env. Durations are
// expressed in milliseconds to keep JSON/YAML and env forms uniform.
type Config struct {
	// Streams holds transport-level settings shared by every worker.
	Streams StreamConfig `json:"streams" yaml:"streams"`
	// Aggregation configures the post aggregation engine.
	Aggregation AggregationConfig `json:"aggregation" yaml:"aggregation"`
	// Sync configures the search synchronization worker.
	Sync SyncConfig `json:"sync" yaml:"sync"`
}

// StreamConfig captures consumer-runtime defaults.
type StreamConfig struct {
	// ClaimTimeoutMs bounds how long a delivered entry may sit
	// unacknowledged before the reclaim pass may reassign it to a live
	// consumer.
	ClaimTimeoutMs int64 `json:"claimTimeoutMs" yaml:"claimTimeoutMs"`
	// MaxDeliveries is the redelivery budget before dead-lettering.
	MaxDeliveries int `json:"maxDeliveries" yaml:"maxDeliveries"`
	// BlockTimeoutMs is the long-poll wait on an idle stream read.
	BlockTimeoutMs int64 `json:"blockTimeoutMs" yaml:"blockTimeoutMs"`
	// PayloadMaxBytes caps accepted payload size on publish.
	PayloadMaxBytes int `json:"payloadMaxBytes" yaml:"payloadMaxBytes"`
	// RetentionMs bounds entry age across all streams, dead-letter streams
	// included; the janitor trims older entries. Zero disables trimming.
	RetentionMs int64 `json:"retentionMs" yaml:"retentionMs"`
}

// ClaimTimeout returns the claim timeout as a duration.
func (c StreamConfig) ClaimTimeout() time.Duration {
	return time.Duration(c.ClaimTimeoutMs) * time.Millisecond
}

// BlockTimeout returns the long-poll wait as a duration.
func (c StreamConfig) BlockTimeout() time.Duration {
	return time.Duration(c.BlockTimeoutMs) * time.Millisecond
}

// Retention returns the stream entry retention as a duration.
func (c StreamConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMs) * time.Millisecond
}

// AggregationConfig captures the bounded-wait window of the engine.
type AggregationConfig struct {
	// WindowMs is the maximum wait for completeness from first-seen time.
	WindowMs int64 `json:"windowMs" yaml:"windowMs"`
	// PollIntervalMs is the completeness re-check interval within the window.
	PollIntervalMs int64 `json:"pollIntervalMs" yaml:"pollIntervalMs"`
	// RetentionMs bounds how long a published accumulator (and its claim
	// markers) is kept before the janitor sweeps it. Zero disables sweeping.
	RetentionMs int64 `json:"retentionMs" yaml:"retentionMs"`
}

// Window returns the bounded-wait window as a duration.
func (c AggregationConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// PollInterval returns the completeness poll interval as a duration.
func (c AggregationConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Retention returns the published-accumulator retention as a duration.
func (c AggregationConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMs) * time.Millisecond
}

// SyncConfig captures the search sync worker retry policy and index target.
type SyncConfig struct {
	// IndexBaseURL is the search engine endpoint. Empty selects the
	// in-memory indexer (local development, tests).
	IndexBaseURL string `json:"indexBaseURL" yaml:"indexBaseURL"`
	// RetryBaseMs is the first backoff delay; subsequent delays double.
	RetryBaseMs int64 `json:"retryBaseMs" yaml:"retryBaseMs"`
	// MaxAttempts bounds consecutive attempts before dead-lettering.
	MaxAttempts int `json:"maxAttempts" yaml:"maxAttempts"`
	// RequestTimeoutMs bounds a single index/delete call.
	RequestTimeoutMs int64 `json:"requestTimeoutMs" yaml:"requestTimeoutMs"`
}

// RetryBase returns the first backoff delay as a duration.
func (c SyncConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMs) * time.Millisecond
}

// RequestTimeout returns the per-call timeout as a duration.
func (c SyncConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Streams: StreamConfig{
			ClaimTimeoutMs:  30_000,
			MaxDeliveries:   3,
			BlockTimeoutMs:  1_000,
			PayloadMaxBytes: 1 << 20,
			RetentionMs:     86_400_000,
		},
		Aggregation: AggregationConfig{
			WindowMs:       6_000,
			PollIntervalMs: 500,
			RetentionMs:    3_600_000,
		},
		Sync: SyncConfig{
			RetryBaseMs:      2_000,
			MaxAttempts:      3,
			RequestTimeoutMs: 10_000,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
