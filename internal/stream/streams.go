package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/pkg/log"
)

// Streams provides named append-only streams with consumer-group delivery.
//
// Each group has a durable delivery cursor (last seq handed out to the group)
// and a pending entry list tracking in-flight deliveries. An entry leaves the
// pending list on Ack or DeadLetter; entries held past the claim timeout are
// reclaimed by whichever consumer fetches next.
type Streams struct {
	db     *pebblestore.DB
	logger log.Logger

	mu   sync.Mutex
	logs map[string]*Log
}

// FetchOptions controls a single Fetch call.
type FetchOptions struct {
	// MaxCount caps the number of deliveries returned. Defaults to 16.
	MaxCount int
	// ClaimTimeout is the idle duration after which another consumer may
	// reclaim a pending entry.
	ClaimTimeout time.Duration
	// BlockTimeout bounds how long Fetch waits for new entries when nothing
	// is deliverable. Zero means do not block.
	BlockTimeout time.Duration
}

// Delivery is a message handed to a consumer, including redelivery state.
type Delivery struct {
	Stream        string
	Seq           uint64
	Payload       []byte
	Headers       map[string]string
	Timestamp     int64
	DeliveryCount int
}

func New(db *pebblestore.DB, logger log.Logger) *Streams {
	if logger == nil {
		logger = log.NewLogger().WithComponent("stream")
	}
	return &Streams{db: db, logger: logger, logs: make(map[string]*Log)}
}

// Open returns the Log for a stream name, creating it on first use.
func (s *Streams) Open(name string) (*Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[name]; ok {
		return l, nil
	}
	l, err := OpenLog(s.db, name)
	if err != nil {
		return nil, err
	}
	s.logs[name] = l
	return l, nil
}

// Publish appends a single message to a stream and returns its seq.
func (s *Streams) Publish(ctx context.Context, stream string, headers map[string]string, payload []byte) (uint64, error) {
	l, err := s.Open(stream)
	if err != nil {
		return 0, err
	}
	seqs, err := l.Append(ctx, []AppendRecord{{
		Header:  EncodeHeader(nowMs(), headers),
		Payload: payload,
	}})
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// Read scans entries of a stream with seq > after, up to max items.
func (s *Streams) Read(stream string, after uint64, max int) ([]Item, error) {
	if max <= 0 {
		max = 100
	}
	return readRange(s.db, stream, after, max)
}

// Fetch returns up to MaxCount deliveries for a consumer: first any pending
// entries idle past the claim timeout, then new entries past the group
// cursor. Blocks up to BlockTimeout when nothing is deliverable.
func (s *Streams) Fetch(ctx context.Context, stream, group, consumer string, opts FetchOptions) ([]Delivery, error) {
	if opts.MaxCount <= 0 {
		opts.MaxCount = 16
	}
	l, err := s.Open(stream)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(opts.BlockTimeout)
	for {
		out, err := s.fetchOnce(ctx, l, group, consumer, opts)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 || opts.BlockTimeout <= 0 {
			return out, nil
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, nil
		}
		if err := waitForAppend(ctx, l, remain); err != nil {
			if err == context.DeadlineExceeded {
				return nil, nil
			}
			return nil, err
		}
	}
}

func (s *Streams) fetchOnce(ctx context.Context, l *Log, group, consumer string, opts FetchOptions) ([]Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMs()
	stream := l.Name()
	b := s.db.NewBatch()
	defer b.Close()

	var out []Delivery
	dirty := false

	// Reclaim: pending entries idle past the claim timeout are redelivered
	// here with an incremented delivery count.
	if opts.ClaimTimeout > 0 {
		pending, err := scanPending(s.db, stream, group)
		if err != nil {
			return nil, err
		}
		cutoff := now - opts.ClaimTimeout.Milliseconds()
		for _, pe := range pending {
			if len(out) >= opts.MaxCount {
				break
			}
			if pe.DeliveredAtMs > cutoff {
				continue
			}
			item, err := l.GetEntry(pe.Seq)
			if err != nil {
				// entry vanished, drop the pending record
				if derr := b.Delete(KeyPending(stream, group, pe.Seq), nil); derr != nil {
					return nil, derr
				}
				dirty = true
				continue
			}
			pe.Consumer = consumer
			pe.DeliveryCount++
			pe.DeliveredAtMs = now
			if err := b.Set(KeyPending(stream, group, pe.Seq), encodePending(pe), nil); err != nil {
				return nil, err
			}
			out = append(out, deliveryFromItem(stream, item, pe.DeliveryCount))
		}
	}

	// New entries past the group cursor.
	if len(out) < opts.MaxCount {
		cursor := getCursor(s.db, stream, group)
		items, err := readRange(s.db, stream, cursor, opts.MaxCount-len(out))
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			pe := PendingEntry{Seq: item.Seq, Consumer: consumer, DeliveryCount: 1, DeliveredAtMs: now}
			if err := b.Set(KeyPending(stream, group, item.Seq), encodePending(pe), nil); err != nil {
				return nil, err
			}
			cursor = item.Seq
			out = append(out, deliveryFromItem(stream, item, 1))
		}
		if len(items) > 0 {
			if err := putCursor(b, stream, group, cursor); err != nil {
				return nil, err
			}
		}
	}

	if len(out) == 0 && !dirty {
		return nil, nil
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	return out, nil
}

func deliveryFromItem(stream string, item Item, count int) Delivery {
	return Delivery{
		Stream:        stream,
		Seq:           item.Seq,
		Payload:       item.Payload,
		Headers:       item.Headers(),
		Timestamp:     item.Timestamp(),
		DeliveryCount: count,
	}
}

// Ack removes a delivery from the group's pending list. Acking an already
// acked seq is a no-op.
func (s *Streams) Ack(ctx context.Context, stream, group string, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(KeyPending(stream, group, seq))
}

// Fail marks a pending delivery as immediately reclaimable so the next Fetch
// redelivers it without waiting out the claim timeout.
func (s *Streams) Fail(ctx context.Context, stream, group string, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, err := s.db.Get(KeyPending(stream, group, seq))
	if err != nil {
		return nil // already acked or dead-lettered
	}
	pe, ok := decodePending(seq, val)
	if !ok {
		return fmt.Errorf("stream: corrupt pending entry %s/%s/%d", stream, group, seq)
	}
	pe.DeliveredAtMs = 0
	return s.db.Set(KeyPending(stream, group, seq), encodePending(pe))
}

// DeadLetterStream returns the dead-letter stream name for a stream+group.
func DeadLetterStream(stream, group string) string {
	return "dlq/" + stream + "/" + group
}

// DeadLetter moves a pending delivery to the group's dead-letter stream and
// removes it from the pending list. The original payload is preserved;
// provenance is recorded in headers.
func (s *Streams) DeadLetter(ctx context.Context, stream, group string, seq uint64, reason string) error {
	l, err := s.Open(stream)
	if err != nil {
		return err
	}
	dl, err := s.Open(DeadLetterStream(stream, group))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := l.GetEntry(seq)
	if err != nil {
		return err
	}
	count := 0
	if val, gerr := s.db.Get(KeyPending(stream, group, seq)); gerr == nil {
		if pe, ok := decodePending(seq, val); ok {
			count = pe.DeliveryCount
		}
	}
	headers := map[string]string{
		"origin-stream": stream,
		"origin-group":  group,
		"origin-seq":    fmt.Sprintf("%d", seq),
		"deliveries":    fmt.Sprintf("%d", count),
		"reason":        reason,
	}
	if _, err := dl.Append(ctx, []AppendRecord{{
		Header:  EncodeHeader(nowMs(), headers),
		Payload: item.Payload,
	}}); err != nil {
		return err
	}
	s.logger.Warn("dead-lettered message",
		log.Str("stream", stream), log.Str("group", group),
		log.Uint64("seq", seq), log.Str("reason", reason))
	return s.db.Delete(KeyPending(stream, group, seq))
}

// Pending lists the in-flight deliveries of a group in seq order.
func (s *Streams) Pending(stream, group string) ([]PendingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scanPending(s.db, stream, group)
}

// ListDead reads entries from a group's dead-letter stream.
func (s *Streams) ListDead(stream, group string, after uint64, max int) ([]Item, error) {
	if max <= 0 {
		max = 100
	}
	return readRange(s.db, DeadLetterStream(stream, group), after, max)
}
