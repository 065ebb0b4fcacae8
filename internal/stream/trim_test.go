package stream

import (
	"context"
	"sort"
	"testing"
	"time"
)

func TestTrimOlderThanKeepsRecentEntries(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()
	now := int64(1_000)
	withClock(t, &now)

	for _, p := range []string{"a", "b"} {
		if _, err := s.Publish(ctx, "jobs", nil, []byte(p)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	now = 10_000
	if _, err := s.Publish(ctx, "jobs", nil, []byte("c")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deleted, err := s.TrimOlderThan(ctx, "jobs", 5_000)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}
	items, err := s.Read("jobs", 0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 1 || items[0].Seq != 3 {
		t.Fatalf("items = %+v, want only seq 3", items)
	}
}

func TestTrimSkipsPendingEntries(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()
	now := int64(1_000)
	withClock(t, &now)

	for _, p := range []string{"a", "b"} {
		if _, err := s.Publish(ctx, "jobs", nil, []byte(p)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	// deliver both, ack only the first
	ds, err := s.Fetch(ctx, "jobs", "g", "c1", FetchOptions{MaxCount: 10})
	if err != nil || len(ds) != 2 {
		t.Fatalf("fetch = %v, %v", ds, err)
	}
	if err := s.Ack(ctx, "jobs", "g", 1); err != nil {
		t.Fatalf("ack: %v", err)
	}

	now = 10_000
	deleted, err := s.TrimOlderThan(ctx, "jobs", 5_000)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	items, err := s.Read("jobs", 0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 1 || items[0].Seq != 2 {
		t.Fatalf("items = %+v, want pending seq 2 kept", items)
	}
}

func TestTrimAllCoversDeadLetterStreams(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()
	now := int64(1_000)
	withClock(t, &now)

	if _, err := s.Publish(ctx, "jobs", nil, []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := s.Fetch(ctx, "jobs", "g", "c1", FetchOptions{MaxCount: 1}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := s.DeadLetter(ctx, "jobs", "g", 1, "bad"); err != nil {
		t.Fatalf("dead letter: %v", err)
	}

	names, err := s.Names()
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	sort.Strings(names)
	want := []string{"dlq/jobs/g", "jobs"}
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("names = %v, want %v", names, want)
	}

	now = 10_000
	deleted, err := s.TrimAll(ctx, 5*time.Second)
	if err != nil {
		t.Fatalf("trim all: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want source and dead-letter entries gone", deleted)
	}
	dead, err := s.ListDead("jobs", "g", 0, 10)
	if err != nil {
		t.Fatalf("list dead: %v", err)
	}
	if len(dead) != 0 {
		t.Fatalf("dead = %d, want trimmed", len(dead))
	}
}

func TestTrimAllDisabledByZeroRetention(t *testing.T) {
	s := openTestStreams(t)
	ctx := context.Background()
	now := int64(1_000)
	withClock(t, &now)

	if _, err := s.Publish(ctx, "jobs", nil, []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	now = 10_000
	deleted, err := s.TrimAll(ctx, 0)
	if err != nil || deleted != 0 {
		t.Fatalf("trim all = %d, %v, want no-op", deleted, err)
	}
}
