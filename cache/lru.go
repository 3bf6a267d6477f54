package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUStore bounds the number of cached documents, dropping the least
// recently used one at capacity.
type LRUStore struct {
	cache *lru.Cache[string, Entry]
}

func NewLRUStore(capacity int) (*LRUStore, error) {
	cache, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUStore{cache: cache}, nil
}

func (s *LRUStore) Get(key string) (Entry, bool) {
	return s.cache.Get(key)
}

func (s *LRUStore) Set(key string, entry Entry) {
	s.cache.Add(key, entry)
}

func (s *LRUStore) Delete(key string) {
	s.cache.Remove(key)
}

func (s *LRUStore) Keys() []string {
	return s.cache.Keys()
}
