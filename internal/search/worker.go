package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/consumer"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/insight"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/metrics"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/stream"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/pkg/log"
)

// WorkerOptions configures the synchronization worker.
type WorkerOptions struct {
	Indexer Indexer

	// MaxAttempts is how many times one task is tried before dead-letter.
	// Defaults to 3.
	MaxAttempts int
	// RetryBase is the backoff before the second attempt; each further
	// attempt doubles it. Defaults to 2s.
	RetryBase time.Duration

	Logger  log.Logger
	Metrics *metrics.Metrics
}

// Worker applies SyncTasks against the search index: decode vector fields,
// upsert or delete, acknowledge only after the index confirmed the write.
// Transient failures are retried in place with exponential backoff; once
// attempts are exhausted the task is dead-lettered.
type Worker struct {
	indexer     Indexer
	maxAttempts int
	retryBase   time.Duration
	log         log.Logger
	metrics     *metrics.Metrics

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Indexer == nil {
		return nil, errors.New("search: indexer is required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Worker{
		indexer:     opts.Indexer,
		maxAttempts: opts.MaxAttempts,
		retryBase:   opts.RetryBase,
		log:         logger.WithComponent("search-sync"),
		metrics:     opts.Metrics,
		sleep:       sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle processes one SyncTask delivery.
func (w *Worker) Handle(ctx context.Context, d stream.Delivery) consumer.Decision {
	task, err := insight.DecodeSyncTask(d.Payload)
	if err != nil {
		w.log.Warn("malformed sync task", log.Uint64("seq", d.Seq), log.Err(err))
		return consumer.Fatal(err)
	}
	if !ValidIndexType(task.IndexType) {
		w.log.Warn("unknown index type",
			log.Str("indexType", task.IndexType),
			log.Str("documentId", task.DocumentID))
		return consumer.Fatal(fmt.Errorf("%w: unknown index type %q", insight.ErrMalformed, task.IndexType))
	}
	if task.Operation == "index" {
		if err := decodeVectorFields(task.DocumentData); err != nil {
			w.log.Warn("vector decode failed",
				log.Str("documentId", task.DocumentID), log.Err(err))
			return consumer.Fatal(err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		lastErr = w.apply(ctx, task)
		if lastErr == nil {
			w.observe(task.IndexType, "ok", attempt)
			return consumer.Ack
		}
		if errors.Is(lastErr, insight.ErrMalformed) {
			w.log.Warn("sync task rejected by index",
				log.Str("documentId", task.DocumentID), log.Err(lastErr))
			return consumer.Fatal(lastErr)
		}
		w.log.Warn("sync attempt failed",
			log.Str("documentId", task.DocumentID),
			log.Int("attempt", attempt),
			log.Err(lastErr))
		delay := w.retryBase << (attempt - 1)
		if err := w.sleep(ctx, delay); err != nil {
			return consumer.Retry(lastErr)
		}
	}
	w.log.Error("sync task exhausted retries",
		log.Str("documentId", task.DocumentID),
		log.Str("indexType", task.IndexType),
		log.Err(lastErr))
	w.observe(task.IndexType, "dead_letter", w.maxAttempts)
	return consumer.Fatal(fmt.Errorf("sync failed after %d attempts: %w", w.maxAttempts, lastErr))
}

func (w *Worker) observe(indexType, result string, attempts int) {
	if w.metrics == nil {
		return
	}
	w.metrics.SyncOps.WithLabelValues(indexType, result).Inc()
	w.metrics.SyncAttempts.Observe(float64(attempts))
}

func (w *Worker) apply(ctx context.Context, task insight.SyncTask) error {
	switch task.Operation {
	case "index":
		return w.indexer.Index(ctx, task.IndexType, task.DocumentID, task.DocumentData)
	case "delete":
		return w.indexer.Delete(ctx, task.IndexType, task.DocumentID)
	}
	return insight.ErrMalformed
}
