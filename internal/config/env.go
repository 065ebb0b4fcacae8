package config

import (
	"os"
	"strconv"
)

// FromEnv overlays KLD_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	overlayInt64(&cfg.Streams.ClaimTimeoutMs, "KLD_CLAIM_TIMEOUT_MS")
	overlayInt(&cfg.Streams.MaxDeliveries, "KLD_MAX_DELIVERIES")
	overlayInt64(&cfg.Streams.BlockTimeoutMs, "KLD_BLOCK_TIMEOUT_MS")
	overlayInt(&cfg.Streams.PayloadMaxBytes, "KLD_PAYLOAD_MAX_BYTES")
	overlayInt64(&cfg.Streams.RetentionMs, "KLD_STREAM_RETENTION_MS")

	overlayInt64(&cfg.Aggregation.WindowMs, "KLD_AGG_WINDOW_MS")
	overlayInt64(&cfg.Aggregation.PollIntervalMs, "KLD_AGG_POLL_INTERVAL_MS")
	overlayInt64(&cfg.Aggregation.RetentionMs, "KLD_AGG_RETENTION_MS")

	if v := os.Getenv("KLD_INDEX_BASE_URL"); v != "" {
		cfg.Sync.IndexBaseURL = v
	}
	overlayInt64(&cfg.Sync.RetryBaseMs, "KLD_SYNC_RETRY_BASE_MS")
	overlayInt(&cfg.Sync.MaxAttempts, "KLD_SYNC_MAX_ATTEMPTS")
	overlayInt64(&cfg.Sync.RequestTimeoutMs, "KLD_SYNC_REQUEST_TIMEOUT_MS")
}

func overlayInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overlayInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
