package stream

import (
	"bytes"
	"context"
	"testing"
	"time"

	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
)

func openTestStreams(t *testing.T) *Streams {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, nil)
}

// withClock pins nowMs to a controllable value for the duration of the test.
func withClock(t *testing.T, ms *int64) {
	t.Helper()
	old := nowMs
	nowMs = func() int64 { return *ms }
	t.Cleanup(func() { nowMs = old })
}

func TestPublishAndRead(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()

	seq1, err := s.Publish(ctx, "jobs", nil, []byte("a"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	seq2, err := s.Publish(ctx, "jobs", map[string]string{"corr": "x"}, []byte("b"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if seq1 != 1 || seq2 != 2 {
		t.Fatalf("seqs = %d, %d", seq1, seq2)
	}

	items, err := s.Read("jobs", 0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	if !bytes.Equal(items[0].Payload, []byte("a")) || !bytes.Equal(items[1].Payload, []byte("b")) {
		t.Fatalf("payloads = %q, %q", items[0].Payload, items[1].Payload)
	}
	if items[1].Headers()["corr"] != "x" {
		t.Fatalf("headers = %v", items[1].Headers())
	}

	// reads past the last seq return nothing
	items, err = s.Read("jobs", 2, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty tail, got %d", len(items))
	}
}

func TestSeqSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	s := New(db, nil)
	if _, err := s.Publish(ctx, "jobs", nil, []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("reopen pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s = New(db, nil)
	seq, err := s.Publish(ctx, "jobs", nil, []byte("b"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if seq != 2 {
		t.Fatalf("seq after reopen = %d, want 2", seq)
	}
}

func TestFetchTracksPendingAndCursor(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		if _, err := s.Publish(ctx, "jobs", nil, []byte(p)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	out, err := s.Fetch(ctx, "jobs", "g1", "c1", FetchOptions{MaxCount: 2})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("deliveries = %d", len(out))
	}
	if out[0].Seq != 1 || out[1].Seq != 2 {
		t.Fatalf("seqs = %d, %d", out[0].Seq, out[1].Seq)
	}
	if out[0].DeliveryCount != 1 {
		t.Fatalf("deliveryCount = %d", out[0].DeliveryCount)
	}

	pending, err := s.Pending("jobs", "g1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].Consumer != "c1" {
		t.Fatalf("pending = %+v", pending)
	}

	// cursor advanced: next fetch sees only the third entry
	out, err = s.Fetch(ctx, "jobs", "g1", "c2", FetchOptions{MaxCount: 10})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(out) != 1 || out[0].Seq != 3 {
		t.Fatalf("unexpected deliveries: %+v", out)
	}
}

func TestIndependentGroups(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()

	if _, err := s.Publish(ctx, "jobs", nil, []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, g := range []string{"g1", "g2"} {
		out, err := s.Fetch(ctx, "jobs", g, "c1", FetchOptions{MaxCount: 10})
		if err != nil {
			t.Fatalf("fetch %s: %v", g, err)
		}
		if len(out) != 1 {
			t.Fatalf("group %s deliveries = %d", g, len(out))
		}
	}
}

func TestAckRemovesPending(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()

	if _, err := s.Publish(ctx, "jobs", nil, []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	out, err := s.Fetch(ctx, "jobs", "g1", "c1", FetchOptions{MaxCount: 1})
	if err != nil || len(out) != 1 {
		t.Fatalf("fetch: %v %d", err, len(out))
	}
	if err := s.Ack(ctx, "jobs", "g1", out[0].Seq); err != nil {
		t.Fatalf("ack: %v", err)
	}
	pending, err := s.Pending("jobs", "g1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after ack = %+v", pending)
	}
	// duplicate ack is a no-op
	if err := s.Ack(ctx, "jobs", "g1", out[0].Seq); err != nil {
		t.Fatalf("duplicate ack: %v", err)
	}
}

func TestReclaimAfterClaimTimeout(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()
	now := int64(1_000_000)
	withClock(t, &now)

	if _, err := s.Publish(ctx, "jobs", nil, []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	opts := FetchOptions{MaxCount: 10, ClaimTimeout: 30 * time.Second}

	out, err := s.Fetch(ctx, "jobs", "g1", "c1", opts)
	if err != nil || len(out) != 1 {
		t.Fatalf("fetch: %v %d", err, len(out))
	}

	// before the timeout the entry stays claimed by c1
	now += 10_000
	out, err = s.Fetch(ctx, "jobs", "g1", "c2", opts)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("premature reclaim: %+v", out)
	}

	// past the timeout c2 reclaims it with a bumped delivery count
	now += 25_000
	out, err = s.Fetch(ctx, "jobs", "g1", "c2", opts)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(out) != 1 || out[0].DeliveryCount != 2 {
		t.Fatalf("reclaim = %+v", out)
	}
	pending, _ := s.Pending("jobs", "g1")
	if len(pending) != 1 || pending[0].Consumer != "c2" {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestFailMakesImmediatelyReclaimable(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()

	if _, err := s.Publish(ctx, "jobs", nil, []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	opts := FetchOptions{MaxCount: 10, ClaimTimeout: time.Hour}

	out, err := s.Fetch(ctx, "jobs", "g1", "c1", opts)
	if err != nil || len(out) != 1 {
		t.Fatalf("fetch: %v %d", err, len(out))
	}
	if err := s.Fail(ctx, "jobs", "g1", out[0].Seq); err != nil {
		t.Fatalf("fail: %v", err)
	}
	out, err = s.Fetch(ctx, "jobs", "g1", "c2", opts)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(out) != 1 || out[0].DeliveryCount != 2 {
		t.Fatalf("redelivery = %+v", out)
	}
}

func TestDeadLetterPreservesPayload(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()

	if _, err := s.Publish(ctx, "jobs", nil, []byte(`{"bad":true}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	out, err := s.Fetch(ctx, "jobs", "g1", "c1", FetchOptions{MaxCount: 1})
	if err != nil || len(out) != 1 {
		t.Fatalf("fetch: %v %d", err, len(out))
	}
	if err := s.DeadLetter(ctx, "jobs", "g1", out[0].Seq, "malformed"); err != nil {
		t.Fatalf("dead-letter: %v", err)
	}

	pending, _ := s.Pending("jobs", "g1")
	if len(pending) != 0 {
		t.Fatalf("pending after dead-letter = %+v", pending)
	}

	dead, err := s.ListDead("jobs", "g1", 0, 10)
	if err != nil {
		t.Fatalf("list dead: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("dead entries = %d", len(dead))
	}
	if !bytes.Equal(dead[0].Payload, []byte(`{"bad":true}`)) {
		t.Fatalf("payload = %q", dead[0].Payload)
	}
	h := dead[0].Headers()
	if h["origin-stream"] != "jobs" || h["origin-group"] != "g1" || h["reason"] != "malformed" {
		t.Fatalf("headers = %v", h)
	}
}

func TestBlockingFetchWakesOnPublish(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()

	done := make(chan []Delivery, 1)
	go func() {
		out, err := s.Fetch(ctx, "jobs", "g1", "c1", FetchOptions{
			MaxCount:     1,
			BlockTimeout: 5 * time.Second,
		})
		if err != nil {
			t.Errorf("fetch: %v", err)
		}
		done <- out
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := s.Publish(ctx, "jobs", nil, []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case out := <-done:
		if len(out) != 1 {
			t.Fatalf("deliveries = %d", len(out))
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("blocking fetch did not wake")
	}
}

func TestBlockingFetchTimesOut(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()
	// the stream must exist for the notify channel to be registered
	if _, err := s.Open("jobs"); err != nil {
		t.Fatalf("open: %v", err)
	}

	start := time.Now()
	out, err := s.Fetch(ctx, "jobs", "g1", "c1", FetchOptions{
		MaxCount:     1,
		BlockTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("deliveries = %d", len(out))
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Fatalf("returned before block timeout")
	}
}
