package search

import (
	"context"
	"sync"
)

// Index collections known to the search engine.
const (
	IndexPosts    = "posts"
	IndexUsers    = "users"
	IndexMedia    = "media"
	IndexTags     = "tags"
	IndexFaces    = "faces"
	IndexCaptions = "captions"
	IndexActivity = "activity"
)

var indexTypes = map[string]bool{
	IndexPosts:    true,
	IndexUsers:    true,
	IndexMedia:    true,
	IndexTags:     true,
	IndexFaces:    true,
	IndexCaptions: true,
	IndexActivity: true,
}

// ValidIndexType reports whether t names a known index collection.
func ValidIndexType(t string) bool { return indexTypes[t] }

// Indexer is the target search engine. Both operations are idempotent:
// Index overwrites by document id, Delete of an absent document is a no-op.
type Indexer interface {
	Index(ctx context.Context, indexType, documentID string, document map[string]interface{}) error
	Delete(ctx context.Context, indexType, documentID string) error
}

// MemoryIndexer is an in-process Indexer used in tests and local runs.
type MemoryIndexer struct {
	mu   sync.Mutex
	docs map[string]map[string]map[string]interface{}
}

func NewMemoryIndexer() *MemoryIndexer {
	return &MemoryIndexer{docs: make(map[string]map[string]map[string]interface{})}
}

func (m *MemoryIndexer) Index(ctx context.Context, indexType, documentID string, document map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.docs[indexType]
	if !ok {
		coll = make(map[string]map[string]interface{})
		m.docs[indexType] = coll
	}
	coll[documentID] = document
	return nil
}

func (m *MemoryIndexer) Delete(ctx context.Context, indexType, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if coll, ok := m.docs[indexType]; ok {
		delete(coll, documentID)
	}
	return nil
}

// Get returns the stored document, if any.
func (m *MemoryIndexer) Get(indexType, documentID string) (map[string]interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.docs[indexType]
	if !ok {
		return nil, false
	}
	doc, ok := coll[documentID]
	return doc, ok
}

// Count returns the number of documents in a collection.
func (m *MemoryIndexer) Count(indexType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[indexType])
}
