package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
)

// AppendRecord represents a single appendable event.
type AppendRecord struct {
	Header  []byte
	Payload []byte
}

// Log provides append-only operations for a single named stream.
type Log struct {
	db   *pebblestore.DB
	name string

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}
}

// OpenLog initializes a Log and loads the last sequence from metadata (if any).
func OpenLog(db *pebblestore.DB, name string) (*Log, error) {
	l := &Log{db: db, name: name, notifyCh: make(chan struct{})}
	meta, err := db.Get(KeyLogMeta(name))
	if err == nil && len(meta) >= 8 {
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return l, nil
}

// Name returns the stream name.
func (l *Log) Name() string { return l.name }

// Append appends the provided records as a single atomic batch. Returns
// assigned seq numbers.
func (l *Log) Append(ctx context.Context, recs []AppendRecord) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	seqs := make([]uint64, len(recs))
	for i, r := range recs {
		l.lastSeq++
		seq := l.lastSeq
		val := EncodeRecord(r.Header, r.Payload)
		if err := b.Set(KeyLogEntry(l.name, seq), val, nil); err != nil {
			return nil, err
		}
		seqs[i] = seq
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], l.lastSeq)
	if err := b.Set(KeyLogMeta(l.name), meta[:], nil); err != nil {
		return nil, err
	}

	if err := l.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	// notify waiters
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return seqs, nil
}

// LastSeq returns the highest assigned sequence.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

var ErrNotFound = errors.New("entry not found")

// GetEntry loads a single entry by sequence.
func (l *Log) GetEntry(seq uint64) (Item, error) {
	val, err := l.db.Get(KeyLogEntry(l.name, seq))
	if err != nil {
		return Item{}, ErrNotFound
	}
	dec, ok := DecodeRecord(val)
	if !ok {
		return Item{}, ErrNotFound
	}
	return Item{Seq: seq, Header: dec.Header, Payload: dec.Payload}, nil
}
