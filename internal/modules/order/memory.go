package order

import (
	"context"
	"sync"
	"time"

	"tawsil/internal/types"
)

type MemoryStore struct {
	mu      sync.Mutex
	orders  map[types.ID]Order
	drivers map[types.ID]Driver
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[types.ID]Order), drivers: make(map[types.ID]Driver)}
}

func (m *MemoryStore) CreateOrder(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return ErrConflict
	}
	o.StatusVersion = 0
	m.orders[o.ID] = o
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id types.ID) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = to
	o.StatusVersion++
	o.ClosedAt = &at
	m.orders[id] = o
	return true, nil
}

func (m *MemoryStore) CountActive(_ context.Context, zoneID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.ZoneID == zoneID && o.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateDriver(_ context.Context, d Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[d.ID]; ok {
		return ErrConflict
	}
	d.Version = 0
	m.drivers[d.ID] = d
	return nil
}

func (m *MemoryStore) GetDriver(_ context.Context, id types.ID) (Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return Driver{}, ErrNotFound
	}
	return d, nil
}

func (m *MemoryStore) UpdateDriver(_ context.Context, d Driver, expectedVersion int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.drivers[d.ID]
	if !ok || cur.Version != expectedVersion {
		return false, nil
	}
	d.Version = expectedVersion + 1
	m.drivers[d.ID] = d
	return true, nil
}
