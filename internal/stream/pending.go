package stream

import (
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
)

// PendingEntry tracks an in-flight delivery for a consumer group.
type PendingEntry struct {
	Seq           uint64 `json:"seq"`
	Consumer      string `json:"consumer"`
	DeliveryCount int    `json:"deliveryCount"`
	// DeliveredAtMs is the time of the most recent delivery. A zero value
	// marks the entry as immediately reclaimable.
	DeliveredAtMs int64 `json:"deliveredAtMs"`
}

func encodePending(pe PendingEntry) []byte {
	b, _ := json.Marshal(pe)
	return b
}

func decodePending(seq uint64, b []byte) (PendingEntry, bool) {
	var pe PendingEntry
	if err := json.Unmarshal(b, &pe); err != nil {
		return PendingEntry{}, false
	}
	pe.Seq = seq
	return pe, true
}

// scanPending lists all pending entries for a group in seq order.
func scanPending(db *pebblestore.DB, stream, group string) ([]PendingEntry, error) {
	prefix := KeyPendingPrefix(stream, group)
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []PendingEntry
	for valid := iter.First(); valid; valid = iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix)+8 {
			continue
		}
		seq := binary.BigEndian.Uint64(key[len(key)-8:])
		if pe, ok := decodePending(seq, iter.Value()); ok {
			out = append(out, pe)
		}
	}
	return out, nil
}
