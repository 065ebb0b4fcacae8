package stream

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
)

// getCursor loads the last-delivered seq for a group. Missing cursor means 0.
func getCursor(db *pebblestore.DB, stream, group string) uint64 {
	val, err := db.Get(KeyCursor(stream, group))
	if err != nil || len(val) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(val[:8])
}

func putCursor(b *pebble.Batch, stream, group string, seq uint64) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], seq)
	return b.Set(KeyCursor(stream, group), v[:], nil)
}
