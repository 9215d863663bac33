package monitoring

import (
	"context"
	"sync"
)

// MemoryStore implements Store for demo/testing.
type MemoryStore struct {
	mu      sync.RWMutex
	uploads map[string][]*Entry // uploadID → entries
	order   []string
}

// NewMemoryStore creates an in-memory upload audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{uploads: make(map[string][]*Entry)}
}

func (s *MemoryStore) RecordUpload(_ context.Context, uploadID string, entries []*Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]*Entry, len(entries))
	for i, e := range entries {
		c := *e
		cp[i] = &c
	}
	if _, seen := s.uploads[uploadID]; !seen {
		s.order = append(s.order, uploadID)
	}
	s.uploads[uploadID] = cp
	return nil
}

func (s *MemoryStore) ListByEntity(_ context.Context, entity string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var result []*Entry
	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		for _, e := range s.uploads[s.order[i]] {
			if e.From == entity || e.To == entity {
				c := *e
				result = append(result, &c)
				if len(result) == limit {
					break
				}
			}
		}
	}
	return result, nil
}

// Uploads returns the number of recorded uploads (for testing).
func (s *MemoryStore) Uploads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.uploads)
}
