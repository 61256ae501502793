package cache

import (
	"strings"
	"sync"
	"time"

	"nixmate/internal/operation"
)

// Entry is one memoized result.
type Entry struct {
	Key        string           `json:"key"`
	Kind       operation.Kind   `json:"kind"`
	Result     operation.Result `json:"result"`
	InsertedAt time.Time        `json:"inserted_at"`
	TTL        time.Duration    `json:"ttl"`
}

// Expired reports whether the entry is older than its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.InsertedAt) > e.TTL
}

// Store persists entries. Implementations must be safe for concurrent use.
// Get returns found=false for missing keys; expiry is the Cache's concern.
type Store interface {
	Get(key string) (Entry, bool, error)
	Put(entry Entry) error
	Delete(key string) error
	// DeleteKind removes every entry of kind and returns how many were removed.
	DeleteKind(kind operation.Kind) (int, error)
	Len() int
	Close() error
}

// keyHasKind matches "kind" and "kind?..." but not a longer kind name that
// merely shares the prefix.
func keyHasKind(key string, kind operation.Kind) bool {
	k := string(kind)
	return key == k || strings.HasPrefix(key, k+"?")
}

// MemoryStore keeps entries in a map guarded by a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	e.Result = e.Result.Clone()
	return e, true, nil
}

func (s *MemoryStore) Put(entry Entry) error {
	entry.Result = entry.Result.Clone()
	s.mu.Lock()
	s.entries[entry.Key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteKind(kind operation.Kind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.entries {
		if keyHasKind(key, kind) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error { return nil }
