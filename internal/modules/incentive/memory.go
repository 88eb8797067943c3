package incentive

import (
	"context"
	"sort"
	"sync"
	"time"

	"tawsil/internal/types"
)

// MemoryStore is an in-process Repository for tests and local runs.
type MemoryStore struct {
	mu        sync.Mutex
	spent     map[string]int64
	quests    map[types.ID]Quest
	campaigns map[types.ID]IncentiveCampaign
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		spent:     make(map[string]int64),
		quests:    make(map[types.ID]Quest),
		campaigns: make(map[types.ID]IncentiveCampaign),
	}
}

func (m *MemoryStore) Reserve(_ context.Context, day time.Time, amount, limit int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := day.Format("2006-01-02")
	res, b := ApplyBudgetCap(amount, IncentiveBudget{Limit: limit, Spent: m.spent[key]})
	m.spent[key] = b.Spent
	return res.Granted, nil
}

func (m *MemoryStore) Release(_ context.Context, day time.Time, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := day.Format("2006-01-02")
	if amount > m.spent[key] {
		amount = m.spent[key]
	}
	if amount > 0 {
		m.spent[key] -= amount
	}
	return nil
}

func (m *MemoryStore) Spent(_ context.Context, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spent[day.Format("2006-01-02")], nil
}

func (m *MemoryStore) CreateQuest(_ context.Context, q Quest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quests[q.ID]; ok {
		return ErrConflict
	}
	m.quests[q.ID] = q
	return nil
}

func (m *MemoryStore) GetQuest(_ context.Context, id types.ID) (Quest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quests[id]
	if !ok {
		return Quest{}, ErrNotFound
	}
	return q, nil
}

func (m *MemoryStore) DriverQuests(_ context.Context, driverID types.ID) ([]Quest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Quest
	for _, q := range m.quests {
		if q.DriverID == driverID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateQuest(_ context.Context, id types.ID, fn func(Quest) (Quest, error)) (Quest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quests[id]
	if !ok {
		return Quest{}, ErrNotFound
	}
	next, err := fn(q)
	if err != nil {
		return Quest{}, err
	}
	m.quests[id] = next
	return next, nil
}

func (m *MemoryStore) CreateCampaign(_ context.Context, c IncentiveCampaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[c.ID]; ok {
		return ErrConflict
	}
	m.campaigns[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCampaign(_ context.Context, id types.ID) (IncentiveCampaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return IncentiveCampaign{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListCampaigns(_ context.Context) ([]IncentiveCampaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]IncentiveCampaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateCampaign(_ context.Context, id types.ID, fn func(IncentiveCampaign) (IncentiveCampaign, error)) (IncentiveCampaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return IncentiveCampaign{}, ErrNotFound
	}
	next, err := fn(c)
	if err != nil {
		return IncentiveCampaign{}, err
	}
	m.campaigns[id] = next
	return next, nil
}
