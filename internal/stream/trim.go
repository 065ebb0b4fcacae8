package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/pebble"
)

const trimBatchLimit = 1024

// Names lists every stream present in storage, dead-letter streams included.
func (s *Streams) Names() ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: logPrefix,
		UpperBound: upperBound(logPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []string
	for ok := iter.First(); ok; ok = iter.Next() {
		k := iter.Key()
		if !bytes.HasSuffix(k, metaSuffix) {
			continue
		}
		// an entry key's binary seq suffix can collide with "/m"
		if len(k) > 8+len(entrySeg) && bytes.Equal(k[len(k)-8-len(entrySeg):len(k)-8], entrySeg) {
			continue
		}
		out = append(out, string(k[len(logPrefix):len(k)-len(metaSuffix)]))
	}
	return out, nil
}

// TrimOlderThan deletes entries of a stream whose write timestamp is before
// cutoffMs, in batched commits. Entries still pending in any group are kept:
// an unacked delivery is never dropped by retention. Returns the number of
// deleted entries.
func (s *Streams) TrimOlderThan(ctx context.Context, stream string, cutoffMs int64) (int, error) {
	keep, err := s.pendingSeqs(stream)
	if err != nil {
		return 0, err
	}

	low := KeyLogEntry(stream, 0)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: low,
		UpperBound: upperBound(KeyLogEntryPrefix(stream)),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	deleted := 0
	for ok := iter.First(); ok; {
		b := s.db.NewBatch()
		n := 0
		for ok && n < trimBatchLimit {
			seq := binary.BigEndian.Uint64(iter.Key()[len(low)-8:])
			dec, okDec := DecodeRecord(iter.Value())
			if !okDec {
				// drop corrupt records along with the expired range
				if err := b.Delete(iter.Key(), nil); err != nil {
					b.Close()
					return deleted, err
				}
				deleted++
				n++
				ok = iter.Next()
				continue
			}
			// timestamps are monotone with seq, stop at the first kept one
			if HeaderTimestamp(dec.Header) >= cutoffMs {
				ok = false
				break
			}
			if keep[seq] {
				ok = iter.Next()
				continue
			}
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			deleted++
			n++
			ok = iter.Next()
		}
		if n > 0 {
			if err := s.db.CommitBatch(ctx, b); err != nil {
				b.Close()
				return deleted, err
			}
		}
		b.Close()
	}
	return deleted, nil
}

// TrimAll applies the age cutoff to every stream. A non-positive olderThan
// disables trimming.
func (s *Streams) TrimAll(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	names, err := s.Names()
	if err != nil {
		return 0, err
	}
	cutoff := nowMs() - olderThan.Milliseconds()
	total := 0
	for _, name := range names {
		n, err := s.TrimOlderThan(ctx, name, cutoff)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// pendingSeqs collects the sequences pending in any group of a stream.
func (s *Streams) pendingSeqs(stream string) (map[uint64]bool, error) {
	prefix := make([]byte, 0, len(grpPrefix)+len(stream)+1)
	prefix = append(prefix, grpPrefix...)
	prefix = append(prefix, stream...)
	prefix = append(prefix, sep)

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make(map[uint64]bool)
	for ok := iter.First(); ok; ok = iter.Next() {
		k := iter.Key()
		if len(k) > 8+len(pelSeg) && bytes.Equal(k[len(k)-8-len(pelSeg):len(k)-8], pelSeg) {
			out[binary.BigEndian.Uint64(k[len(k)-8:])] = true
		}
	}
	return out, nil
}
