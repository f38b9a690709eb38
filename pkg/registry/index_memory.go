package registry

import (
	"context"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryIndex is an in-memory Index for tests. It is safe for concurrent
// use.
type MemoryIndex struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{data: make(map[string][]byte)}
}

func (m *MemoryIndex) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (m *MemoryIndex) Update(_ context.Context, puts []IndexEntry, deletes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range puts {
		m.data[e.Key] = slices.Clone(e.Value)
	}
	for _, k := range deletes {
		delete(m.data, k)
	}
	return nil
}

func (m *MemoryIndex) Scan(_ context.Context, prefix string) iter.Seq2[IndexEntry, error] {
	m.mu.RLock()
	var matches []IndexEntry
	for _, k := range slices.Sorted(maps.Keys(m.data)) {
		if strings.HasPrefix(k, prefix) {
			matches = append(matches, IndexEntry{Key: k, Value: slices.Clone(m.data[k])})
		}
	}
	m.mu.RUnlock()

	return func(yield func(IndexEntry, error) bool) {
		for _, e := range matches {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *MemoryIndex) Close() error { return nil }

var _ Index = (*MemoryIndex)(nil)
