package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/metrics"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/stream"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/pkg/log"
)

// Kind is the outcome of a Decision.
type Kind int

const (
	KindAck Kind = iota
	KindRetry
	KindFatal
)

// Decision is a handler's verdict on a delivery. Retry and Fatal carry the
// error that caused them; the runner attaches it to the dead-letter record
// so the DLQ preserves the last failure, not just the policy that fired.
type Decision struct {
	Kind Kind
	Err  error
}

// Ack marks the delivery as successfully processed.
var Ack = Decision{Kind: KindAck}

// Retry requests redelivery, recording err as the attempt's failure. Once
// the delivery count reaches the runner's MaxDeliveries the message is
// dead-lettered instead, with err in the reason.
func Retry(err error) Decision { return Decision{Kind: KindRetry, Err: err} }

// Fatal dead-letters the delivery immediately without further attempts.
func Fatal(err error) Decision { return Decision{Kind: KindFatal, Err: err} }

// Handler processes a single delivery. Handlers must be idempotent: a
// message may be delivered more than once.
type Handler interface {
	Handle(ctx context.Context, d stream.Delivery) Decision
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, d stream.Delivery) Decision

func (f HandlerFunc) Handle(ctx context.Context, d stream.Delivery) Decision {
	return f(ctx, d)
}

// Options configures a Runner.
type Options struct {
	Stream   string
	Group    string
	Consumer string
	Streams  *stream.Streams
	Handler  Handler

	// ClaimTimeout is the idle duration before a crashed consumer's pending
	// deliveries become reclaimable. Defaults to 30s.
	ClaimTimeout time.Duration
	// MaxDeliveries caps total delivery attempts per message. Defaults to 3.
	MaxDeliveries int
	// BlockTimeout bounds each blocking fetch. Defaults to 1s.
	BlockTimeout time.Duration
	// BatchSize caps deliveries per fetch. Defaults to 16.
	BatchSize int

	Logger  log.Logger
	Metrics *metrics.Metrics
}

// Runner drives a Handler over a stream within a consumer group, applying
// ack/retry/dead-letter semantics and reclaiming stalled deliveries.
type Runner struct {
	opts Options
	log  log.Logger
}

func NewRunner(opts Options) (*Runner, error) {
	if opts.Stream == "" || opts.Group == "" || opts.Consumer == "" {
		return nil, errors.New("consumer: stream, group and consumer are required")
	}
	if opts.Streams == nil || opts.Handler == nil {
		return nil, errors.New("consumer: streams and handler are required")
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = 30 * time.Second
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 3
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	logger = logger.WithComponent("consumer").WithFields(log.Fields{
		"stream": opts.Stream,
		"group":  opts.Group,
	})
	return &Runner{opts: opts, log: logger}, nil
}

// Run fetches and processes deliveries until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		deliveries, err := r.opts.Streams.Fetch(ctx, r.opts.Stream, r.opts.Group, r.opts.Consumer, stream.FetchOptions{
			MaxCount:     r.opts.BatchSize,
			ClaimTimeout: r.opts.ClaimTimeout,
			BlockTimeout: r.opts.BlockTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Error("fetch failed", log.Err(err))
			time.Sleep(r.opts.BlockTimeout)
			continue
		}
		for _, d := range deliveries {
			r.process(ctx, d)
		}
	}
}

// ProcessOnce performs a single non-blocking fetch cycle. Used by tests and
// by drain paths that should not block.
func (r *Runner) ProcessOnce(ctx context.Context) (int, error) {
	deliveries, err := r.opts.Streams.Fetch(ctx, r.opts.Stream, r.opts.Group, r.opts.Consumer, stream.FetchOptions{
		MaxCount:     r.opts.BatchSize,
		ClaimTimeout: r.opts.ClaimTimeout,
	})
	if err != nil {
		return 0, err
	}
	for _, d := range deliveries {
		r.process(ctx, d)
	}
	return len(deliveries), nil
}

func (r *Runner) process(ctx context.Context, d stream.Delivery) {
	if d.DeliveryCount > r.opts.MaxDeliveries {
		r.deadLetter(ctx, d, "max deliveries exceeded")
		return
	}

	decision := r.invoke(ctx, d)
	r.observe(decision)
	switch decision.Kind {
	case KindAck:
		if err := r.opts.Streams.Ack(ctx, r.opts.Stream, r.opts.Group, d.Seq); err != nil {
			r.log.Error("ack failed", log.Uint64("seq", d.Seq), log.Err(err))
		}
	case KindFatal:
		r.deadLetter(ctx, d, reason("fatal handler error", decision.Err))
	case KindRetry:
		if d.DeliveryCount >= r.opts.MaxDeliveries {
			r.deadLetter(ctx, d, reason("max deliveries exceeded", decision.Err))
			return
		}
		if err := r.opts.Streams.Fail(ctx, r.opts.Stream, r.opts.Group, d.Seq); err != nil {
			r.log.Error("nack failed", log.Uint64("seq", d.Seq), log.Err(err))
		}
	}
}

// invoke runs the handler, converting a panic into a Retry so one poisonous
// message cannot take down the worker loop.
func (r *Runner) invoke(ctx context.Context, d stream.Delivery) (decision Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panic",
				log.Uint64("seq", d.Seq),
				log.Str("panic", fmt.Sprintf("%v", rec)))
			decision = Retry(fmt.Errorf("handler panic: %v", rec))
		}
	}()
	return r.opts.Handler.Handle(ctx, d)
}

func (r *Runner) observe(decision Decision) {
	if r.opts.Metrics == nil {
		return
	}
	label := "ack"
	switch decision.Kind {
	case KindRetry:
		label = "retry"
	case KindFatal:
		label = "fatal"
	}
	r.opts.Metrics.MessagesHandled.WithLabelValues(r.opts.Stream, r.opts.Group, label).Inc()
}

// reason joins the policy that dead-lettered a message with the last
// handler error, when one was reported.
func reason(base string, err error) string {
	if err == nil {
		return base
	}
	return base + ": " + err.Error()
}

func (r *Runner) deadLetter(ctx context.Context, d stream.Delivery, reason string) {
	if err := r.opts.Streams.DeadLetter(ctx, r.opts.Stream, r.opts.Group, d.Seq, reason); err != nil {
		r.log.Error("dead-letter failed", log.Uint64("seq", d.Seq), log.Err(err))
		return
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.DeadLettered.WithLabelValues(r.opts.Stream, r.opts.Group).Inc()
	}
}
