package db

import (
	"context"
	"sort"
	"sync"
)

// memoryStore is the default, process-local store.
type memoryStore struct {
	mu   sync.RWMutex
	recs map[string]*Investigation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() Store {
	return &memoryStore{recs: make(map[string]*Investigation)}
}

func (s *memoryStore) Put(ctx context.Context, inv *Investigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	s.recs[inv.ID] = &cp
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*Investigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) List(ctx context.Context, limit int, status string) ([]*Investigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Investigation, 0, len(s.recs))
	for _, rec := range s.recs {
		if status != "" && rec.Status != status {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) Close() error { return nil }
