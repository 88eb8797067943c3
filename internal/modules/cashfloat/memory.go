package cashfloat

import (
	"context"
	"sync"

	"tawsil/internal/types"
)

type MemoryStore struct {
	mu     sync.Mutex
	floats map[types.ID]CashFloat
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{floats: make(map[types.ID]CashFloat)}
}

func (m *MemoryStore) Create(_ context.Context, f CashFloat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.floats[f.DriverID]; ok {
		return ErrConflict
	}
	f.Version = 0
	m.floats[f.DriverID] = f
	return nil
}

func (m *MemoryStore) Get(_ context.Context, driverID types.ID) (CashFloat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.floats[driverID]
	if !ok {
		return CashFloat{}, ErrNotFound
	}
	return f, nil
}

func (m *MemoryStore) Update(_ context.Context, f CashFloat, expectedVersion int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.floats[f.DriverID]
	if !ok || cur.Version != expectedVersion {
		return false, nil
	}
	f.Version = expectedVersion + 1
	m.floats[f.DriverID] = f
	return true, nil
}
