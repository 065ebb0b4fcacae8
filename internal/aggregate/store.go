package aggregate

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
)

// Accumulator states.
const (
	StateCollecting = "collecting"
	StatePublished  = "published"
)

// MediaState holds the last-received analysis per service for one media
// item. Duplicate delivery of the same (mediaId, service) overwrites, so
// the merge is idempotent.
type MediaState struct {
	Tags    []string `json:"tags,omitempty"`
	HasTags bool     `json:"hasTags,omitempty"`

	Scenes    []string `json:"scenes,omitempty"`
	HasScenes bool     `json:"hasScenes,omitempty"`

	Caption    string `json:"caption,omitempty"`
	HasCaption bool   `json:"hasCaption,omitempty"`

	Safe      bool `json:"safe,omitempty"`
	HasSafety bool `json:"hasSafety,omitempty"`

	FaceCount int  `json:"faceCount,omitempty"`
	HasFaces  bool `json:"hasFaces,omitempty"`
}

// Accumulator is the per-post reverse index of everything observed for a
// postId: the expected media manifest (from jobs) and the per-media results.
// Owned exclusively by the aggregation engine.
type Accumulator struct {
	PostID        string                 `json:"postId"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Expected      map[string]bool        `json:"expected,omitempty"`
	Media         map[string]*MediaState `json:"media,omitempty"`
	FirstSeenAtMs int64                  `json:"firstSeenAtMs"`
	PublishedAtMs int64                  `json:"publishedAtMs,omitempty"`
	State         string                 `json:"state"`
	Cycle         uint64                 `json:"cycle"`
}

func (a *Accumulator) media(id string) *MediaState {
	if a.Media == nil {
		a.Media = make(map[string]*MediaState)
	}
	m, ok := a.Media[id]
	if !ok {
		m = &MediaState{}
		a.Media[id] = m
	}
	return m
}

// MediaIDs returns every media id discovered for the post: the expected
// manifest unioned with observed results.
func (a *Accumulator) MediaIDs() map[string]bool {
	ids := make(map[string]bool, len(a.Expected)+len(a.Media))
	for id := range a.Expected {
		ids[id] = true
	}
	for id := range a.Media {
		ids[id] = true
	}
	return ids
}

// Store persists accumulators and publish claims in Pebble.
type Store struct {
	db *pebblestore.DB
	mu sync.Mutex
}

func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db}
}

func keyPost(postID string) []byte {
	return []byte("agg/post/" + postID)
}

func keyClaim(postID string, cycle uint64) []byte {
	return []byte(fmt.Sprintf("agg/claim/%s/%d", postID, cycle))
}

// Get loads the accumulator for a post, or nil when none exists.
func (s *Store) Get(postID string) (*Accumulator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(postID)
}

func (s *Store) getLocked(postID string) (*Accumulator, error) {
	val, err := s.db.Get(keyPost(postID))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var acc Accumulator
	if err := json.Unmarshal(val, &acc); err != nil {
		return nil, fmt.Errorf("aggregate: corrupt accumulator for %s: %w", postID, err)
	}
	return &acc, nil
}

// Upsert loads or creates the accumulator for a post, applies mutate under
// the store lock, and persists the result. Returns the accumulator and
// whether this call created it.
func (s *Store) Upsert(postID string, mutate func(*Accumulator)) (*Accumulator, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.getLocked(postID)
	if err != nil {
		return nil, false, err
	}
	created := false
	if acc == nil {
		acc = &Accumulator{
			PostID:        postID,
			FirstSeenAtMs: nowMs(),
			State:         StateCollecting,
			Cycle:         1,
		}
		created = true
	}
	mutate(acc)
	if err := s.putLocked(acc); err != nil {
		return nil, false, err
	}
	return acc, created, nil
}

func (s *Store) putLocked(acc *Accumulator) error {
	val, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	return s.db.Set(keyPost(acc.PostID), val)
}

// Claim atomically claims (postId, cycle) for publishing. Exactly one
// caller wins; the rest observe false and discard their computation.
func (s *Store) Claim(postID string, cycle uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyClaim(postID, cycle)
	if _, err := s.db.Get(key); err == nil {
		return false, nil
	} else if err != pebble.ErrNotFound {
		return false, err
	}
	// claim value records when the claim was taken, for inspection
	ts := []byte(fmt.Sprintf("%d", nowMs()))
	if err := s.db.Set(key, ts); err != nil {
		return false, err
	}
	return true, nil
}

// MarkPublished transitions the accumulator to its terminal state.
func (s *Store) MarkPublished(postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.getLocked(postID)
	if err != nil || acc == nil {
		return err
	}
	acc.State = StatePublished
	acc.PublishedAtMs = nowMs()
	return s.putLocked(acc)
}

// Delete drops the accumulator and its claim markers.
func (s *Store) Delete(postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.getLocked(postID)
	if err != nil {
		return err
	}
	if acc != nil {
		for c := uint64(1); c <= acc.Cycle; c++ {
			if err := s.db.Delete(keyClaim(postID, c)); err != nil {
				return err
			}
		}
	}
	return s.db.Delete(keyPost(postID))
}

// ListCollecting returns every accumulator still in the collecting state.
// Used on startup to resume bounded-wait watchers after a restart.
func (s *Store) ListCollecting() ([]*Accumulator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := []byte("agg/post/")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte{}, prefix...), 0xFF),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*Accumulator
	for valid := iter.First(); valid; valid = iter.Next() {
		var acc Accumulator
		if err := json.Unmarshal(iter.Value(), &acc); err != nil {
			continue
		}
		if acc.State == StateCollecting {
			a := acc
			out = append(out, &a)
		}
	}
	return out, nil
}

// Sweep deletes accumulators published longer than olderThan ago, together
// with their claim markers. Collecting posts are never swept. Returns the
// number of posts removed. A non-positive olderThan disables sweeping.
func (s *Store) Sweep(olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := nowMs() - olderThan.Milliseconds()

	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := []byte("agg/post/")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte{}, prefix...), 0xFF),
	})
	if err != nil {
		return 0, err
	}
	var expired []*Accumulator
	for valid := iter.First(); valid; valid = iter.Next() {
		var acc Accumulator
		if err := json.Unmarshal(iter.Value(), &acc); err != nil {
			continue
		}
		if acc.State == StatePublished && acc.PublishedAtMs > 0 && acc.PublishedAtMs < cutoff {
			a := acc
			expired = append(expired, &a)
		}
	}
	_ = iter.Close()

	for _, acc := range expired {
		for c := uint64(1); c <= acc.Cycle; c++ {
			if err := s.db.Delete(keyClaim(acc.PostID, c)); err != nil {
				return 0, err
			}
		}
		if err := s.db.Delete(keyPost(acc.PostID)); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// nowMs is swappable in tests.
var nowMs = func() int64 { return time.Now().UnixMilli() }
