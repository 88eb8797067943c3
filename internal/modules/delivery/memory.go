package delivery

import (
	"context"
	"sync"

	"tawsil/internal/types"
)

// MemoryStore is an in-process Repository with the same versioning contract
// as Store. It backs tests and single-node demo runs.
type MemoryStore struct {
	mu sync.Mutex
	m  map[types.ID]Tracking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[types.ID]Tracking)}
}

func (s *MemoryStore) Create(_ context.Context, t Tracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Version = 0
	s.m[t.ID] = t.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (Tracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.m[id]
	if !ok {
		return Tracking{}, ErrNotFound
	}
	return t.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, t Tracking, expectedVersion int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[t.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Version != expectedVersion {
		return false, nil
	}
	next := t.clone()
	next.Version = expectedVersion + 1
	s.m[t.ID] = next
	return true, nil
}

var _ Repository = (*MemoryStore)(nil)
