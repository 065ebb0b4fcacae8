package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/consumer"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/insight"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/metrics"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/stream"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/pkg/id"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/pkg/log"
)

// Options configures an Engine.
type Options struct {
	Store   *Store
	Streams *stream.Streams

	// Window bounds how long a post waits for completeness from first-seen
	// time. Defaults to 6s.
	Window time.Duration
	// PollInterval is the completeness re-check interval while waiting.
	// Defaults to 500ms.
	PollInterval time.Duration

	Logger  log.Logger
	Metrics *metrics.Metrics
}

// Engine correlates per-media analysis events by post and publishes one
// aggregated insight per post per cycle.
//
// Lifecycle per post: the first job or result creates the accumulator and a
// bounded-wait watcher. Events merge into the accumulator and wake the
// watcher; the watcher publishes as soon as the post is complete, or a
// flagged partial aggregate when the wait window elapses first. The publish
// itself is guarded by an atomic per-(post, cycle) claim so duplicate
// triggers produce exactly one published result.
type Engine struct {
	store   *Store
	streams *stream.Streams
	window  time.Duration
	poll    time.Duration
	log     log.Logger
	metrics *metrics.Metrics

	ids *id.Generator

	mu       sync.Mutex
	watchers map[string]chan struct{}
	closed   chan struct{}
	wg       sync.WaitGroup
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Streams == nil {
		return nil, errors.New("aggregate: store and streams are required")
	}
	if opts.Window <= 0 {
		opts.Window = 6 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Engine{
		store:    opts.Store,
		streams:  opts.Streams,
		window:   opts.Window,
		poll:     opts.PollInterval,
		log:      logger.WithComponent("aggregate"),
		metrics:  opts.Metrics,
		ids:      id.NewGenerator(),
		watchers: make(map[string]chan struct{}),
		closed:   make(chan struct{}),
	}, nil
}

// Resume restarts watchers for accumulators that were still collecting when
// the process last stopped.
func (e *Engine) Resume() error {
	accs, err := e.store.ListCollecting()
	if err != nil {
		return err
	}
	for _, acc := range accs {
		e.ensureWatcher(acc.PostID, acc.FirstSeenAtMs)
	}
	if len(accs) > 0 {
		e.log.Info("resumed collecting posts", log.Int("count", len(accs)))
	}
	return nil
}

// Close stops all watchers and waits for them to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	select {
	case <-e.closed:
	default:
		close(e.closed)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// HandleJob ingests an ImageProcessingJob, extending the post's expected
// media manifest.
func (e *Engine) HandleJob(ctx context.Context, d stream.Delivery) consumer.Decision {
	job, err := insight.DecodeJob(d.Payload)
	if err != nil {
		e.log.Warn("malformed job", log.Uint64("seq", d.Seq), log.Err(err))
		return consumer.Fatal(err)
	}
	acc, _, err := e.store.Upsert(job.PostID, func(acc *Accumulator) {
		if acc.Expected == nil {
			acc.Expected = make(map[string]bool)
		}
		acc.Expected[job.MediaID] = true
		if acc.CorrelationID == "" {
			acc.CorrelationID = job.CorrelationID
		}
	})
	if err != nil {
		e.log.Error("job upsert failed", log.Str("postId", job.PostID), log.Err(err))
		return consumer.Retry(err)
	}
	e.observe(acc)
	return consumer.Ack
}

// HandleResult merges an InsightResult into the post accumulator.
func (e *Engine) HandleResult(ctx context.Context, d stream.Delivery) consumer.Decision {
	res, err := insight.DecodeResult(d.Payload)
	if err != nil {
		e.log.Warn("malformed result", log.Uint64("seq", d.Seq), log.Err(err))
		return consumer.Fatal(err)
	}
	merge, err := mergeFunc(res)
	if err != nil {
		e.log.Warn("malformed result payload",
			log.Str("postId", res.PostID),
			log.Str("service", string(res.Service)),
			log.Str("correlationId", res.CorrelationID),
			log.Err(err))
		return consumer.Fatal(err)
	}
	acc, _, err := e.store.Upsert(res.PostID, func(acc *Accumulator) {
		if acc.CorrelationID == "" {
			acc.CorrelationID = res.CorrelationID
		}
		merge(acc.media(res.MediaID))
	})
	if err != nil {
		e.log.Error("result upsert failed", log.Str("postId", res.PostID), log.Err(err))
		return consumer.Retry(err)
	}
	e.observe(acc)
	return consumer.Ack
}

// HandleFace merges a FaceResult into the post accumulator.
func (e *Engine) HandleFace(ctx context.Context, d stream.Delivery) consumer.Decision {
	fr, err := insight.DecodeFaceResult(d.Payload)
	if err != nil {
		e.log.Warn("malformed face result", log.Uint64("seq", d.Seq), log.Err(err))
		return consumer.Fatal(err)
	}
	acc, _, err := e.store.Upsert(fr.PostID, func(acc *Accumulator) {
		if acc.CorrelationID == "" {
			acc.CorrelationID = fr.CorrelationID
		}
		m := acc.media(fr.MediaID)
		m.FaceCount = fr.FacesDetected
		m.HasFaces = true
	})
	if err != nil {
		e.log.Error("face upsert failed", log.Str("postId", fr.PostID), log.Err(err))
		return consumer.Retry(err)
	}
	e.observe(acc)
	return consumer.Ack
}

// Trigger explicitly starts (or wakes) aggregation for a post. Triggering a
// published post opens a new cycle: state returns to collecting, the wait
// window restarts, and the post is re-aggregated over everything merged so
// far, guarded by the new cycle's publish claim.
func (e *Engine) Trigger(postID string) error {
	acc, _, err := e.store.Upsert(postID, func(acc *Accumulator) {
		if acc.State == StatePublished {
			acc.State = StateCollecting
			acc.Cycle++
			acc.FirstSeenAtMs = nowMs()
		}
	})
	if err != nil {
		return err
	}
	e.observe(acc)
	return nil
}

// mergeFunc decodes the typed payload up front so malformed payloads are
// rejected before the accumulator is touched.
func mergeFunc(res insight.InsightResult) (func(*MediaState), error) {
	switch res.Service {
	case insight.ServiceModeration:
		p, err := res.Moderation()
		if err != nil {
			return nil, err
		}
		return func(m *MediaState) { m.Safe = p.IsSafe; m.HasSafety = true }, nil
	case insight.ServiceTagging:
		p, err := res.Tagging()
		if err != nil {
			return nil, err
		}
		return func(m *MediaState) { m.Tags = p.Tags; m.HasTags = true }, nil
	case insight.ServiceScene:
		p, err := res.Scene()
		if err != nil {
			return nil, err
		}
		return func(m *MediaState) { m.Scenes = p.Scenes; m.HasScenes = true }, nil
	case insight.ServiceCaption:
		p, err := res.Caption()
		if err != nil {
			return nil, err
		}
		return func(m *MediaState) { m.Caption = p.Caption; m.HasCaption = true }, nil
	}
	return nil, insight.ErrMalformed
}

// observe makes sure a watcher is running for the post and wakes it.
func (e *Engine) observe(acc *Accumulator) {
	if acc.State != StateCollecting {
		// late event for a published post: merged for inspection, no new cycle
		return
	}
	e.ensureWatcher(acc.PostID, acc.FirstSeenAtMs)
	e.wake(acc.PostID)
}

func (e *Engine) ensureWatcher(postID string, firstSeenMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.closed:
		return
	default:
	}
	if _, ok := e.watchers[postID]; ok {
		return
	}
	wake := make(chan struct{}, 1)
	e.watchers[postID] = wake
	e.wg.Add(1)
	go e.watch(postID, firstSeenMs, wake)
}

func (e *Engine) wake(postID string) {
	e.mu.Lock()
	wake, ok := e.watchers[postID]
	e.mu.Unlock()
	if ok {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

func (e *Engine) watch(postID string, firstSeenMs int64, wake chan struct{}) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.watchers, postID)
		e.mu.Unlock()
	}()

	deadline := firstSeenMs + e.window.Milliseconds()
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		acc, err := e.store.Get(postID)
		if err != nil {
			e.log.Error("watcher load failed", log.Str("postId", postID), log.Err(err))
			return
		}
		if acc == nil || acc.State != StateCollecting {
			return
		}
		if Complete(acc) {
			e.publish(acc, false)
			return
		}
		if nowMs() >= deadline {
			e.publish(acc, true)
			return
		}
		select {
		case <-e.closed:
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

// publish computes and emits the aggregate, guarded by the per-cycle claim.
func (e *Engine) publish(acc *Accumulator, partial bool) {
	claimed, err := e.store.Claim(acc.PostID, acc.Cycle)
	if err != nil {
		e.log.Error("claim failed", log.Str("postId", acc.PostID), log.Err(err))
		return
	}
	if !claimed {
		e.log.Debug("lost publish claim, discarding",
			log.Str("postId", acc.PostID),
			log.Str("correlationId", acc.CorrelationID))
		return
	}

	// Events may arrive without a correlation ID; mint one so the
	// aggregate and its downstream sync tasks remain traceable.
	if acc.CorrelationID == "" {
		acc.CorrelationID = e.ids.Next().String()
	}

	if missing := mediaMissingSafety(acc); len(missing) > 0 {
		e.log.Warn("publishing with media missing moderation signal",
			log.Str("postId", acc.PostID),
			log.Str("correlationId", acc.CorrelationID),
			log.Str("mediaIds", strings.Join(missing, ",")))
	}

	agg := Compute(acc, partial)
	payload, err := json.Marshal(agg)
	if err != nil {
		e.log.Error("aggregate encode failed", log.Str("postId", acc.PostID), log.Err(err))
		return
	}
	headers := map[string]string{}
	if acc.CorrelationID != "" {
		headers["correlationId"] = acc.CorrelationID
	}
	if _, err := e.streams.Publish(context.Background(), insight.StreamAggregated, headers, payload); err != nil {
		e.log.Error("aggregate publish failed", log.Str("postId", acc.PostID), log.Err(err))
		return
	}
	if err := e.store.MarkPublished(acc.PostID); err != nil {
		e.log.Error("mark published failed", log.Str("postId", acc.PostID), log.Err(err))
	}
	e.enqueueSync(agg, headers, payload)
	if e.metrics != nil {
		outcome := "complete"
		if partial {
			outcome = "partial"
		}
		e.metrics.AggregatesPublished.WithLabelValues(outcome).Inc()
		e.metrics.AggregationLatency.Observe(float64(nowMs()-acc.FirstSeenAtMs) / 1000)
	}
	e.log.Info("published aggregate",
		log.Str("postId", acc.PostID),
		log.Str("eventType", agg.InferredEventType),
		log.Int("mediaCount", agg.MediaCount),
		log.Bool("partial", partial),
		log.Str("correlationId", acc.CorrelationID))
}

// enqueueSync hands the published aggregate to the search-sync worker as an
// index task for the post document. Failures here are logged only; the
// aggregate itself is already durable on its stream.
func (e *Engine) enqueueSync(agg insight.AggregatedInsight, headers map[string]string, payload []byte) {
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		e.log.Error("sync task encode failed", log.Str("postId", agg.PostID), log.Err(err))
		return
	}
	task, err := json.Marshal(insight.SyncTask{
		Operation:    "index",
		IndexType:    "posts",
		DocumentID:   agg.PostID,
		DocumentData: doc,
	})
	if err != nil {
		e.log.Error("sync task encode failed", log.Str("postId", agg.PostID), log.Err(err))
		return
	}
	if _, err := e.streams.Publish(context.Background(), insight.StreamSyncTasks, headers, task); err != nil {
		e.log.Error("sync task publish failed", log.Str("postId", agg.PostID), log.Err(err))
	}
}
