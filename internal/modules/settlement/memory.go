package settlement

import (
	"context"
	"sync"

	"tawsil/internal/types"
)

// MemoryLedger is an in-process Ledger for tests and local runs.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []LedgerEntry
	payouts []Payout
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) Append(_ context.Context, entries []LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *MemoryLedger) ByReference(_ context.Context, ref types.ID) ([]LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LedgerEntry
	for _, e := range m.entries {
		if e.ReferenceID == ref {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryLedger) SavePayouts(_ context.Context, payouts []Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts = append(m.payouts, payouts...)
	return nil
}

func (m *MemoryLedger) Payouts() []Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Payout(nil), m.payouts...)
}
