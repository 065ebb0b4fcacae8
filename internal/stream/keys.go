package stream

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - ks/log/{stream}/m                      (stream metadata: lastSeq)
// - ks/log/{stream}/e/{seq_be8}            (entries)
// - ks/grp/{stream}/{group}/cur            (per-group delivery cursor)
// - ks/grp/{stream}/{group}/pel/{seq_be8}  (pending entries)

var (
	sep        = byte('/')
	logPrefix  = []byte("ks/log/")
	grpPrefix  = []byte("ks/grp/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
	curSuffix  = []byte("/cur")
	pelSeg     = []byte("/pel/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyLogMeta builds the stream metadata key.
func KeyLogMeta(stream string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+len(metaSuffix))
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, metaSuffix...)
	return k
}

// KeyLogEntry builds the entry key with a big-endian sequence for ordering.
func KeyLogEntry(stream string, seq uint64) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+len(entrySeg)+8)
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, entrySeg...)
	k = appendBE8(k, seq)
	return k
}

// KeyLogEntryPrefix returns the range prefix for all entries of a stream.
func KeyLogEntryPrefix(stream string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+len(entrySeg))
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, entrySeg...)
	return k
}

// KeyCursor builds the durable delivery-cursor key for a group.
func KeyCursor(stream, group string) []byte {
	k := make([]byte, 0, len(grpPrefix)+len(stream)+1+len(group)+len(curSuffix))
	k = append(k, grpPrefix...)
	k = append(k, stream...)
	k = append(k, sep)
	k = append(k, group...)
	k = append(k, curSuffix...)
	return k
}

// KeyPending builds the pending-entry key for a group and sequence.
func KeyPending(stream, group string, seq uint64) []byte {
	k := KeyPendingPrefix(stream, group)
	k = appendBE8(k, seq)
	return k
}

// KeyPendingPrefix returns the range prefix for a group's pending entries.
func KeyPendingPrefix(stream, group string) []byte {
	k := make([]byte, 0, len(grpPrefix)+len(stream)+1+len(group)+len(pelSeg))
	k = append(k, grpPrefix...)
	k = append(k, stream...)
	k = append(k, sep)
	k = append(k, group...)
	k = append(k, pelSeg...)
	return k
}

// upperBound returns the exclusive upper bound for a prefix scan.
func upperBound(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF)
}
