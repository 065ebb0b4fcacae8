package stream

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"time"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)
//
// The header is an 8-byte big-endian write timestamp (ms) followed by an
// optional JSON headers map.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out
}

type Decoded struct {
	Header  []byte
	Payload []byte
}

func DecodeRecord(b []byte) (Decoded, bool) {
	if len(b) < 1+4 {
		return Decoded{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 {
		return Decoded{}, false
	}
	if int(n)+int(hlen)+4 > len(b) {
		return Decoded{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return Decoded{}, false
	}
	return Decoded{Header: append([]byte(nil), header...), Payload: append([]byte(nil), payload...)}, true
}

// EncodeHeader builds a record header from a write timestamp and headers map.
func EncodeHeader(tsMs int64, headers map[string]string) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(tsMs))
	if len(headers) > 0 {
		if hb, err := json.Marshal(headers); err == nil {
			buf = append(buf, hb...)
		}
	}
	return buf
}

// HeaderTimestamp extracts the write timestamp (ms) from a record header.
func HeaderTimestamp(header []byte) int64 {
	if len(header) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(header[:8]))
}

// HeaderMap extracts the JSON headers map from a record header, if any.
func HeaderMap(header []byte) map[string]string {
	if len(header) <= 8 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(header[8:], &m); err != nil {
		return nil
	}
	return m
}

// nowMs is swappable in tests.
var nowMs = func() int64 { return time.Now().UnixMilli() }
