package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github-insight/internal/common/metrics"
)

type memoryEntry struct {
	value    []byte
	storedAt time.Time
}

// MemoryStore is a process-local Store guarded by a mutex.
type MemoryStore struct {
	opts    Options
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:    opts.withDefaults(),
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.opts.stale(e.storedAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Put stores value under key, replacing any previous entry, then trims the
// store if it grew past MaxEntries.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, storedAt: s.opts.Now()}
	s.evictOldest()
	return nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// evictOldest must be called with mu held.
func (s *MemoryStore) evictOldest() {
	if len(s.entries) <= s.opts.MaxEntries {
		return
	}

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		ta, tb := s.entries[keys[a]].storedAt, s.entries[keys[b]].storedAt
		if ta.Equal(tb) {
			return keys[a] < keys[b]
		}
		return ta.Before(tb)
	})

	n := s.opts.EvictCount
	if n > len(keys) {
		n = len(keys)
	}
	for _, k := range keys[:n] {
		delete(s.entries, k)
	}
	metrics.CacheEvictions.WithLabelValues(s.opts.Name).Add(float64(n))
}
