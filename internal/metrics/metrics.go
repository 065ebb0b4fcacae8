package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide collectors for the insight workers.
type Metrics struct {
	registry *prometheus.Registry

	MessagesHandled *prometheus.CounterVec
	DeadLettered    *prometheus.CounterVec

	AggregatesPublished *prometheus.CounterVec
	AggregationLatency  prometheus.Histogram

	SyncOps      *prometheus.CounterVec
	SyncAttempts prometheus.Histogram

	storageWrite  prometheus.Histogram
	storageRead   prometheus.Histogram
	storageCommit prometheus.Histogram
}

// New builds and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		MessagesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kaleidoscope",
			Name:      "messages_handled_total",
			Help:      "Deliveries by stream, group and decision (ack, retry, fatal).",
		}, []string{"stream", "group", "decision"}),
		DeadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kaleidoscope",
			Name:      "dead_lettered_total",
			Help:      "Messages routed to a dead-letter stream.",
		}, []string{"stream", "group"}),
		AggregatesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kaleidoscope",
			Name:      "aggregates_published_total",
			Help:      "Published aggregates by outcome (complete, partial).",
		}, []string{"outcome"}),
		AggregationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kaleidoscope",
			Name:      "aggregation_latency_seconds",
			Help:      "Time from first-seen to publish per post.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		SyncOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kaleidoscope",
			Name:      "sync_ops_total",
			Help:      "Search sync operations by index type and result.",
		}, []string{"indexType", "result"}),
		SyncAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kaleidoscope",
			Name:      "sync_attempts",
			Help:      "Attempts per sync task before ack or dead-letter.",
			Buckets:   []float64{1, 2, 3, 4},
		}),
		storageWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kaleidoscope",
			Subsystem: "storage",
			Name:      "write_seconds",
			Help:      "Single-key write latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		storageRead: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kaleidoscope",
			Subsystem: "storage",
			Name:      "read_seconds",
			Help:      "Point read latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		storageCommit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kaleidoscope",
			Subsystem: "storage",
			Name:      "batch_commit_seconds",
			Help:      "Batch commit latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
	reg.MustRegister(
		m.MessagesHandled, m.DeadLettered,
		m.AggregatesPublished, m.AggregationLatency,
		m.SyncOps, m.SyncAttempts,
		m.storageWrite, m.storageRead, m.storageCommit,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StorageHook adapts the metrics to the storage layer's observation hook.
func (m *Metrics) StorageHook() StorageHook {
	return StorageHook{m: m}
}

// StorageHook implements pebblestore.MetricsHook.
type StorageHook struct {
	m *Metrics
}

func (h StorageHook) ObserveWrite(elapsed time.Duration, bytes int) {
	h.m.storageWrite.Observe(elapsed.Seconds())
}

func (h StorageHook) ObserveRead(elapsed time.Duration, bytes int) {
	h.m.storageRead.Observe(elapsed.Seconds())
}

func (h StorageHook) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	h.m.storageCommit.Observe(elapsed.Seconds())
}
