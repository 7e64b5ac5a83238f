package npmstats

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps cache entries in process memory. Used in tests and when
// no database is configured; entries do not survive restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]CacheEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]CacheEntry)}
}

func (s *MemoryStore) Get(_ context.Context, pkg string) (*CacheEntry, error) {
	s.mu.RLock()
	e, ok := s.items[pkg]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrEntryNotFound
	}
	e.Series = cloneSeries(e.Series)
	return &e, nil
}

func (s *MemoryStore) Upsert(_ context.Context, entry *CacheEntry) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	e := *entry
	e.Series = cloneSeries(entry.Series)

	s.mu.Lock()
	s.items[e.PackageName] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.items))
	for name := range s.items {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
