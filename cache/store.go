package cache

import (
	"sync"
	"time"
)

// Document is a rendered feed ready to serve.
type Document struct {
	Body        []byte
	ContentType string
}

// Entry is a stored document plus the render time the TTL check reads.
type Entry struct {
	Document   Document
	RenderedAt time.Time
}

// Store is the storage backend behind the feed cache. Implementations are
// safe for concurrent use. Eviction beyond the cache TTL is the store's
// own policy.
type Store interface {
	Get(key string) (Entry, bool)
	Set(key string, entry Entry)
	Delete(key string)
	Keys() []string
}

// MemoryStore keeps entries in a plain map and never evicts.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok
}

func (s *MemoryStore) Set(key string, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}
