package stream

import (
	"bytes"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	header := EncodeHeader(1715000000000, map[string]string{"k": "v"})
	payload := []byte(`{"postId":"p1"}`)
	enc := EncodeRecord(header, payload)

	dec, ok := DecodeRecord(enc)
	if !ok {
		t.Fatalf("decode failed")
	}
	if !bytes.Equal(dec.Payload, payload) {
		t.Fatalf("payload mismatch: %q", dec.Payload)
	}
	if got := HeaderTimestamp(dec.Header); got != 1715000000000 {
		t.Fatalf("timestamp = %d", got)
	}
	if m := HeaderMap(dec.Header); m["k"] != "v" {
		t.Fatalf("headers = %v", m)
	}
}

func TestRecordCorruptionDetected(t *testing.T) {
	enc := EncodeRecord(EncodeHeader(1, nil), []byte("payload"))
	enc[len(enc)/2] ^= 0xFF
	if _, ok := DecodeRecord(enc); ok {
		t.Fatalf("expected corrupt record to fail decode")
	}
}

func TestRecordTruncatedRejected(t *testing.T) {
	enc := EncodeRecord(EncodeHeader(1, nil), []byte("payload"))
	for i := 0; i < 4; i++ {
		if _, ok := DecodeRecord(enc[:i]); ok {
			t.Fatalf("truncated record at %d decoded", i)
		}
	}
}

func TestHeaderWithoutMap(t *testing.T) {
	h := EncodeHeader(42, nil)
	if len(h) != 8 {
		t.Fatalf("header len = %d", len(h))
	}
	if HeaderMap(h) != nil {
		t.Fatalf("expected nil map")
	}
	if HeaderTimestamp(h) != 42 {
		t.Fatalf("timestamp = %d", HeaderTimestamp(h))
	}
}
