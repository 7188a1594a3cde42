package sandbox

import (
	"strings"
	"sync"

	"github.com/eapache/queue/v2"
	"github.com/google/uuid"

	"github.com/coral-p2025/coral/server/metrics"
)

// MemoryStore keeps registered documents in memory and addresses them as
// {basePath}/{id}. Documents stay until revoked or, when the store is
// bounded, until they are the oldest and room is needed.
type MemoryStore struct {
	basePath string
	metrics  *metrics.Metrics
	maxDocs  int

	mu   sync.RWMutex
	docs map[string]string
	// order holds ids in registration order; revoked ids are skipped
	// lazily on eviction.
	order *queue.Queue[string]
}

var _ Registrar = (*MemoryStore)(nil)

// StoreOption configures a MemoryStore.
type StoreOption func(*MemoryStore)

// WithMaxDocuments bounds the store to n documents, evicting the oldest
// first. n <= 0 leaves it unbounded.
func WithMaxDocuments(n int) StoreOption {
	return func(s *MemoryStore) { s.maxDocs = n }
}

// NewMemoryStore returns an empty store serving under basePath.
func NewMemoryStore(basePath string, m *metrics.Metrics, opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		basePath: strings.TrimRight(basePath, "/"),
		metrics:  m,
		docs:     make(map[string]string),
		order:    queue.New[string](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register implements Registrar.
func (s *MemoryStore) Register(document string) string {
	id := uuid.NewString()

	s.mu.Lock()
	s.docs[id] = document
	s.order.Add(id)
	s.evict()
	n := len(s.docs)
	s.mu.Unlock()

	s.observe(n)
	return s.basePath + "/" + id
}

// evict must be called with mu held.
func (s *MemoryStore) evict() {
	if s.maxDocs <= 0 {
		return
	}
	for len(s.docs) > s.maxDocs && s.order.Length() > 0 {
		id := s.order.Remove()
		if _, ok := s.docs[id]; ok {
			delete(s.docs, id)
			if s.metrics != nil {
				s.metrics.BlobsEvicted.Inc()
			}
		}
	}
	// Drop revoked ids so order stays proportional to the bound.
	if s.order.Length() > 2*s.maxDocs {
		live := queue.New[string]()
		for s.order.Length() > 0 {
			if id := s.order.Remove(); s.has(id) {
				live.Add(id)
			}
		}
		s.order = live
	}
}

func (s *MemoryStore) has(id string) bool {
	_, ok := s.docs[id]
	return ok
}

// Get returns the document registered under id.
func (s *MemoryStore) Get(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	return doc, ok
}

// Revoke forgets the document registered under id and reports whether it
// existed.
func (s *MemoryStore) Revoke(id string) bool {
	s.mu.Lock()
	_, ok := s.docs[id]
	delete(s.docs, id)
	n := len(s.docs)
	s.mu.Unlock()

	s.observe(n)
	return ok
}

// IDFromAddress extracts the id from an address returned by Register.
func (s *MemoryStore) IDFromAddress(address string) (string, bool) {
	id, ok := strings.CutPrefix(address, s.basePath+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *MemoryStore) observe(n int) {
	if s.metrics != nil {
		s.metrics.BlobsStored.Set(float64(n))
	}
}
