package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
)

type countingMetrics struct {
	writeBytes  int
	readBytes   int
	commits     int
	commitBytes int
}

func (m *countingMetrics) ObserveWrite(_ time.Duration, bytes int) { m.writeBytes += bytes }
func (m *countingMetrics) ObserveRead(_ time.Duration, bytes int)  { m.readBytes += bytes }
func (m *countingMetrics) ObserveBatchCommit(_ time.Duration, _ int, bytes int) {
	m.commits++
	m.commitBytes += bytes
}

func openDB(t *testing.T, mode FsyncMode) (*DB, *countingMetrics) {
	t.Helper()
	m := &countingMetrics{}
	db, err := Open(Options{
		DataDir:       t.TempDir(),
		Fsync:         mode,
		FsyncInterval: time.Millisecond,
		Metrics:       m,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, m
}

func TestSetGetDelete(t *testing.T) {
	db, m := openDB(t, FsyncModeNever)

	if err := db.Set([]byte("agg/post/p1"), []byte(`{"state":"collecting"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := db.Get([]byte("agg/post/p1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"state":"collecting"}` {
		t.Fatalf("got %q", got)
	}
	if m.writeBytes == 0 || m.readBytes == 0 {
		t.Fatalf("metrics = %+v, want bytes recorded", m)
	}

	if err := db.Delete([]byte("agg/post/p1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("agg/post/p1")); !errors.Is(err, pebble.ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
}

func TestGetReturnsOwnedCopy(t *testing.T) {
	db, _ := openDB(t, FsyncModeNever)

	if err := db.Set([]byte("k"), []byte("before")); err != nil {
		t.Fatalf("set: %v", err)
	}
	held, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := db.Set([]byte("k"), []byte("after!")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if string(held) != "before" {
		t.Fatalf("held value mutated to %q", held)
	}
}

func TestBatchIsAtomicAndCounted(t *testing.T) {
	db, m := openDB(t, FsyncModeInterval)

	b := db.NewBatch()
	for i := 0; i < 3; i++ {
		if err := b.Set([]byte(fmt.Sprintf("ks/log/jobs/e/%d", i)), []byte("entry"), nil); err != nil {
			t.Fatalf("batch set: %v", err)
		}
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	if m.commits != 1 || m.commitBytes <= 0 {
		t.Fatalf("metrics = %+v, want one counted commit", m)
	}
	for i := 0; i < 3; i++ {
		if _, err := db.Get([]byte(fmt.Sprintf("ks/log/jobs/e/%d", i))); err != nil {
			t.Fatalf("get after commit: %v", err)
		}
	}
}

func TestIteratorRespectsBounds(t *testing.T) {
	db, _ := openDB(t, FsyncModeNever)

	for _, k := range []string{"a/1", "a/2", "b/1"} {
		if err := db.Set([]byte(k), []byte("v")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("a/"),
		UpperBound: []byte("a0"),
	})
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	defer iter.Close()

	var keys []string
	for ok := iter.First(); ok; ok = iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if len(keys) != 2 || keys[0] != "a/1" || keys[1] != "a/2" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	db, _ := openDB(t, FsyncModeNever)

	if err := db.Set([]byte("cursor"), []byte("5")); err != nil {
		t.Fatalf("set: %v", err)
	}
	snap := db.NewSnapshot()
	defer snap.Close()

	if err := db.Set([]byte("cursor"), []byte("6")); err != nil {
		t.Fatalf("set: %v", err)
	}

	val, closer, err := snap.Get([]byte("cursor"))
	if err != nil {
		t.Fatalf("snapshot get: %v", err)
	}
	if string(val) != "5" {
		t.Fatalf("snapshot = %q, want pre-write value", val)
	}
	closer.Close()

	live, err := db.Get([]byte("cursor"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(live) != "6" {
		t.Fatalf("live = %q, want post-write value", live)
	}
}
