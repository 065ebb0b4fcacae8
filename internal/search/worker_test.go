package search

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/consumer"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/insight"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/stream"
)

type flakyIndexer struct {
	*MemoryIndexer
	failures int
	calls    int
}

func (f *flakyIndexer) Index(ctx context.Context, indexType, documentID string, document map[string]interface{}) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return f.MemoryIndexer.Index(ctx, indexType, documentID, document)
}

func newTestWorker(t *testing.T, idx Indexer) (*Worker, *[]time.Duration) {
	t.Helper()
	w, err := NewWorker(WorkerOptions{
		Indexer:     idx,
		MaxAttempts: 3,
		RetryBase:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	var slept []time.Duration
	w.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return w, &slept
}

func taskDelivery(t *testing.T, task insight.SyncTask) stream.Delivery {
	t.Helper()
	b, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	return stream.Delivery{Payload: b, DeliveryCount: 1}
}

func encodeVector(vals []float32) string {
	raw := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestIndexTaskStoresDocument(t *testing.T) {
	idx := NewMemoryIndexer()
	w, slept := newTestWorker(t, idx)

	d := taskDelivery(t, insight.SyncTask{
		Operation:    "index",
		IndexType:    IndexPosts,
		DocumentID:   "p1",
		DocumentData: map[string]interface{}{"caption": "hello"},
	})
	if got := w.Handle(context.Background(), d); got != consumer.Ack {
		t.Fatalf("decision = %v", got)
	}
	if len(*slept) != 0 {
		t.Fatalf("unexpected sleeps: %v", *slept)
	}
	doc, ok := idx.Get(IndexPosts, "p1")
	if !ok || doc["caption"] != "hello" {
		t.Fatalf("doc = %v %v", doc, ok)
	}
}

func TestRetryBackoffThenDeadLetter(t *testing.T) {
	idx := &flakyIndexer{MemoryIndexer: NewMemoryIndexer(), failures: 100}
	w, slept := newTestWorker(t, idx)

	d := taskDelivery(t, insight.SyncTask{
		Operation:    "index",
		IndexType:    IndexPosts,
		DocumentID:   "p1",
		DocumentData: map[string]interface{}{"x": 1},
	})
	if got := w.Handle(context.Background(), d); got.Kind != consumer.KindFatal {
		t.Fatalf("decision = %v, want Fatal", got)
	}
	if idx.calls != 3 {
		t.Fatalf("attempts = %d, want 3", idx.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("sleeps = %v", *slept)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("sleeps = %v, want %v", *slept, want)
		}
	}
}

func TestTransientFailureRecovers(t *testing.T) {
	idx := &flakyIndexer{MemoryIndexer: NewMemoryIndexer(), failures: 2}
	w, slept := newTestWorker(t, idx)

	d := taskDelivery(t, insight.SyncTask{
		Operation:    "index",
		IndexType:    IndexMedia,
		DocumentID:   "m1",
		DocumentData: map[string]interface{}{"x": 1},
	})
	if got := w.Handle(context.Background(), d); got != consumer.Ack {
		t.Fatalf("decision = %v", got)
	}
	if idx.calls != 3 || len(*slept) != 2 {
		t.Fatalf("calls = %d, sleeps = %v", idx.calls, *slept)
	}
}

func TestMalformedTaskIsFatalWithoutAttempts(t *testing.T) {
	idx := &flakyIndexer{MemoryIndexer: NewMemoryIndexer()}
	w, _ := newTestWorker(t, idx)

	if got := w.Handle(context.Background(), stream.Delivery{Payload: []byte(`{`)}); got.Kind != consumer.KindFatal {
		t.Fatalf("decision = %v", got)
	}
	bad := taskDelivery(t, insight.SyncTask{
		Operation:    "index",
		IndexType:    "unknown",
		DocumentID:   "p1",
		DocumentData: map[string]interface{}{},
	})
	if got := w.Handle(context.Background(), bad); got.Kind != consumer.KindFatal {
		t.Fatalf("decision = %v", got)
	}
	if idx.calls != 0 {
		t.Fatalf("indexer called %d times for malformed tasks", idx.calls)
	}
}

func TestDeleteAbsentDocumentIsNoop(t *testing.T) {
	idx := NewMemoryIndexer()
	w, _ := newTestWorker(t, idx)

	d := taskDelivery(t, insight.SyncTask{
		Operation:  "delete",
		IndexType:  IndexUsers,
		DocumentID: "ghost",
	})
	if got := w.Handle(context.Background(), d); got != consumer.Ack {
		t.Fatalf("decision = %v", got)
	}
}

func TestReindexOverwrites(t *testing.T) {
	idx := NewMemoryIndexer()
	w, _ := newTestWorker(t, idx)

	for _, caption := range []string{"v1", "v2"} {
		d := taskDelivery(t, insight.SyncTask{
			Operation:    "index",
			IndexType:    IndexPosts,
			DocumentID:   "p1",
			DocumentData: map[string]interface{}{"caption": caption},
		})
		if got := w.Handle(context.Background(), d); got != consumer.Ack {
			t.Fatalf("decision = %v", got)
		}
	}
	if idx.Count(IndexPosts) != 1 {
		t.Fatalf("count = %d", idx.Count(IndexPosts))
	}
	doc, _ := idx.Get(IndexPosts, "p1")
	if doc["caption"] != "v2" {
		t.Fatalf("doc = %v", doc)
	}
}

func TestVectorFieldsDecoded(t *testing.T) {
	idx := NewMemoryIndexer()
	w, _ := newTestWorker(t, idx)

	d := taskDelivery(t, insight.SyncTask{
		Operation:  "index",
		IndexType:  IndexFaces,
		DocumentID: "f1",
		DocumentData: map[string]interface{}{
			"embedding": encodeVector([]float32{0.5, -1.25, 3}),
			"nested": map[string]interface{}{
				"face_embedding": encodeVector([]float32{1}),
			},
			"scene_vector": encodeVector([]float32{2, 4}),
		},
	})
	if got := w.Handle(context.Background(), d); got != consumer.Ack {
		t.Fatalf("decision = %v", got)
	}
	doc, _ := idx.Get(IndexFaces, "f1")
	vec, ok := doc["embedding"].([]float32)
	if !ok || len(vec) != 3 || vec[1] != -1.25 {
		t.Fatalf("embedding = %v", doc["embedding"])
	}
	nested := doc["nested"].(map[string]interface{})
	if nv, ok := nested["face_embedding"].([]float32); !ok || len(nv) != 1 || nv[0] != 1 {
		t.Fatalf("nested embedding = %v", nested["face_embedding"])
	}
	if sv, ok := doc["scene_vector"].([]float32); !ok || len(sv) != 2 || sv[1] != 4 {
		t.Fatalf("scene_vector = %v", doc["scene_vector"])
	}
}

func TestCorruptVectorIsFatal(t *testing.T) {
	idx := &flakyIndexer{MemoryIndexer: NewMemoryIndexer()}
	w, _ := newTestWorker(t, idx)

	d := taskDelivery(t, insight.SyncTask{
		Operation:  "index",
		IndexType:  IndexFaces,
		DocumentID: "f1",
		DocumentData: map[string]interface{}{
			"embedding": "not base64!!!",
		},
	})
	if got := w.Handle(context.Background(), d); got.Kind != consumer.KindFatal {
		t.Fatalf("decision = %v", got)
	}
	if idx.calls != 0 {
		t.Fatalf("indexer called for corrupt vector")
	}
}

func TestHTTPIndexer(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	idx := NewHTTPIndexer(srv.URL, time.Second)
	ctx := context.Background()

	if err := idx.Index(ctx, IndexPosts, "p1", map[string]interface{}{"a": 1}); err != nil {
		t.Fatalf("index: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/indexes/posts/documents/p1" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}

	// 404 on delete is treated as success
	if err := idx.Delete(ctx, IndexPosts, "ghost"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestHTTPIndexerClientErrorIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad document", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	idx := NewHTTPIndexer(srv.URL, time.Second)
	err := idx.Index(context.Background(), IndexPosts, "p1", map[string]interface{}{})
	if !errors.Is(err, insight.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}
