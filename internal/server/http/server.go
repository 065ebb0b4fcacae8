package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/aggregate"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/insight"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/runtime"
)

type Server struct {
	rt     *runtime.Runtime
	engine *aggregate.Engine
	srv    *http.Server
	lis    net.Listener
}

func New(rt *runtime.Runtime, engine *aggregate.Engine) *Server {
	mux := http.NewServeMux()
	s := &Server{rt: rt, engine: engine, srv: &http.Server{Handler: cors(mux)}}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/streams/publish", s.handlePublish)
	mux.HandleFunc("/v1/streams/search", s.handleSearch)
	mux.HandleFunc("/v1/streams/pending", s.handlePending)
	mux.HandleFunc("/v1/dlq", s.handleDLQ)
	mux.HandleFunc("/v1/posts/status", s.handlePostStatus)
	mux.HandleFunc("/v1/aggregate/trigger", s.handleTrigger)
	mux.Handle("/metrics", rt.Metrics().Handler())
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type publishReq struct {
	Stream  string            `json:"stream"`
	Payload json.RawMessage   `json:"payload"`
	Headers map[string]string `json:"headers"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Stream == "" || len(req.Payload) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if max := s.rt.Config().Streams.PayloadMaxBytes; max > 0 && len(req.Payload) > max {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	seq, err := s.rt.Streams().Publish(r.Context(), req.Stream, req.Headers, req.Payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]uint64{"seq": seq})
}

type searchItem struct {
	Seq     uint64            `json:"seq"`
	TsMs    int64             `json:"tsMs"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload json.RawMessage   `json:"payload"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	name := q.Get("stream")
	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	after, _ := strconv.ParseUint(q.Get("after"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	filter, err := newCELFilter(q.Get("filter"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	var out []searchItem
	cursor := after
	for len(out) < limit {
		items, err := s.rt.Streams().Read(name, cursor, limit)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			cursor = it.Seq
			if !filter.Eval(it.Seq, it.Header, it.Payload) {
				continue
			}
			out = append(out, searchItem{
				Seq:     it.Seq,
				TsMs:    it.Timestamp(),
				Headers: it.Headers(),
				Payload: json.RawMessage(it.Payload),
			})
			if len(out) >= limit {
				break
			}
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"items": out, "cursor": cursor})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	name, group := q.Get("stream"), q.Get("group")
	if name == "" || group == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	pending, err := s.rt.Streams().Pending(name, group)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"pending": pending})
}

func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	name, group := q.Get("stream"), q.Get("group")
	if name == "" || group == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	after, _ := strconv.ParseUint(q.Get("after"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	items, err := s.rt.Streams().ListDead(name, group, after, limit)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	out := make([]searchItem, 0, len(items))
	for _, it := range items {
		out = append(out, searchItem{
			Seq:     it.Seq,
			TsMs:    it.Timestamp(),
			Headers: it.Headers(),
			Payload: json.RawMessage(it.Payload),
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"items": out})
}

func (s *Server) handlePostStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	postID := r.URL.Query().Get("postId")
	if postID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	acc, err := s.rt.Posts().Get(postID)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if acc == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	media := make(map[string]map[string]bool, len(acc.Media))
	for id, m := range acc.Media {
		media[id] = map[string]bool{
			string(insight.ServiceModeration): m.HasSafety,
			string(insight.ServiceTagging):    m.HasTags,
			string(insight.ServiceScene):      m.HasScenes,
			string(insight.ServiceCaption):    m.HasCaption,
			"face":                            m.HasFaces,
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"postId":        acc.PostID,
		"state":         acc.State,
		"cycle":         acc.Cycle,
		"firstSeenAtMs": acc.FirstSeenAtMs,
		"complete":      aggregate.Complete(acc),
		"media":         media,
		"correlationId": acc.CorrelationID,
	})
}

type triggerReq struct {
	PostID string `json:"postId"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var req triggerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PostID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.engine.Trigger(req.PostID); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
