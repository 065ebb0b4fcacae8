package aggregate

import (
	"testing"
	"time"

	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

// pinClock fixes nowMs to a controllable value for the duration of the test.
func pinClock(t *testing.T, ms *int64) {
	t.Helper()
	old := nowMs
	nowMs = func() int64 { return *ms }
	t.Cleanup(func() { nowMs = old })
}

func TestSweepRemovesExpiredPublished(t *testing.T) {
	s := openTestStore(t)
	now := int64(1_000)
	pinClock(t, &now)

	if _, _, err := s.Upsert("p1", func(*Accumulator) {}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if won, err := s.Claim("p1", 1); err != nil || !won {
		t.Fatalf("claim = %v, %v", won, err)
	}
	if err := s.MarkPublished("p1"); err != nil {
		t.Fatalf("mark published: %v", err)
	}

	now = 1_000 + time.Hour.Milliseconds() + 1
	removed, err := s.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	acc, err := s.Get("p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc != nil {
		t.Fatalf("accumulator survived sweep: %+v", acc)
	}
	// the claim marker is freed along with the accumulator
	if won, err := s.Claim("p1", 1); err != nil || !won {
		t.Fatalf("claim after sweep = %v, %v", won, err)
	}
}

func TestSweepKeepsRecentAndCollecting(t *testing.T) {
	s := openTestStore(t)
	now := int64(1_000)
	pinClock(t, &now)

	if _, _, err := s.Upsert("collecting", func(*Accumulator) {}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, _, err := s.Upsert("fresh", func(*Accumulator) {}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	now = 2_000
	if err := s.MarkPublished("fresh"); err != nil {
		t.Fatalf("mark published: %v", err)
	}

	now = 2_500
	removed, err := s.Sweep(time.Second)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	for _, id := range []string{"collecting", "fresh"} {
		acc, err := s.Get(id)
		if err != nil || acc == nil {
			t.Fatalf("get %s = %v, %v", id, acc, err)
		}
	}
}

func TestSweepDisabledByZeroRetention(t *testing.T) {
	s := openTestStore(t)
	now := int64(1_000)
	pinClock(t, &now)

	if _, _, err := s.Upsert("p1", func(*Accumulator) {}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.MarkPublished("p1"); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	now = 1_000_000
	removed, err := s.Sweep(0)
	if err != nil || removed != 0 {
		t.Fatalf("sweep = %d, %v, want no-op", removed, err)
	}
}
