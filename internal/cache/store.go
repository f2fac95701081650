package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is one cached value. Entries are replaced whole, never patched.
type Entry struct {
	Value     any
	Epoch     uint64
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is the backing storage for the cache. Implementations may fail;
// the cache treats every failure as a miss.
type Store interface {
	Get(key string) (Entry, bool, error)
	Set(key string, entry Entry) error
	Delete(key string) error
	// Sweep removes entries expired at now and returns how many were removed.
	Sweep(now time.Time) (int, error)
}

// LRUStore is a bounded in-process Store.
type LRUStore struct {
	entries *lru.Cache[string, Entry]
}

// NewLRUStore creates a store holding at most size entries.
func NewLRUStore(size int) (*LRUStore, error) {
	entries, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	return &LRUStore{entries: entries}, nil
}

func (s *LRUStore) Get(key string) (Entry, bool, error) {
	e, ok := s.entries.Get(key)
	return e, ok, nil
}

func (s *LRUStore) Set(key string, entry Entry) error {
	s.entries.Add(key, entry)
	return nil
}

func (s *LRUStore) Delete(key string) error {
	s.entries.Remove(key)
	return nil
}

func (s *LRUStore) Sweep(now time.Time) (int, error) {
	removed := 0
	for _, key := range s.entries.Keys() {
		if e, ok := s.entries.Peek(key); ok && e.Expired(now) {
			s.entries.Remove(key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, including stale ones.
func (s *LRUStore) Len() int {
	return s.entries.Len()
}
