package settlement

import (
	"context"
	"testing"

	"tawsil/internal/infra/testdb"
)

func TestStoreAppendAndPayouts(t *testing.T) {
	store := NewStore(testdb.Open(t, "ledger_entries", "payouts"))
	ctx := context.Background()

	s, err := SettleOrder(order(), DefaultConfig(), settledAt)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	entries := GenerateLedgerEntries(s)
	if err := store.Append(ctx, entries); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := store.ByReference(ctx, s.OrderID)
	if err != nil {
		t.Fatalf("by reference: %v", err)
	}
	if len(got) != len(entries) || SumEntries(got) != s.TotalCharged {
		t.Fatalf("read back %d entries summing to %d", len(got), SumEntries(got))
	}

	payouts, err := BatchCreatePayouts(PayoutRequestsFromLedger(entries), settledAt)
	if err != nil {
		t.Fatalf("payouts: %v", err)
	}
	if err := store.SavePayouts(ctx, payouts); err != nil {
		t.Fatalf("save payouts: %v", err)
	}
}
