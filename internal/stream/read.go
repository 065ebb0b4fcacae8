package stream

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
)

// Item is a single decoded entry read from a stream.
type Item struct {
	Seq     uint64
	Header  []byte
	Payload []byte
}

// Timestamp returns the write timestamp (ms) recorded at append time.
func (it Item) Timestamp() int64 { return HeaderTimestamp(it.Header) }

// Headers returns the optional headers map recorded at append time.
func (it Item) Headers() map[string]string { return HeaderMap(it.Header) }

// readRange scans entries of a stream with seq > after, up to max items.
// Corrupt entries are skipped.
func readRange(db *pebblestore.DB, stream string, after uint64, max int) ([]Item, error) {
	prefix := KeyLogEntryPrefix(stream)
	lower := KeyLogEntry(stream, after+1)
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var items []Item
	for valid := iter.First(); valid && len(items) < max; valid = iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix)+8 {
			continue
		}
		seq := binary.BigEndian.Uint64(key[len(key)-8:])
		dec, ok := DecodeRecord(iter.Value())
		if !ok {
			continue
		}
		items = append(items, Item{Seq: seq, Header: dec.Header, Payload: dec.Payload})
	}
	return items, nil
}
