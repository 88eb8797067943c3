package cashfloat

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"tawsil/internal/logger"
	"tawsil/internal/modules/settlement"
	"tawsil/internal/types"
)

var now = time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)

func newFloat(t *testing.T) CashFloat {
	t.Helper()
	f, err := New("drv-1", DefaultConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return f
}

func TestBalanceIdentityHolds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	f := newFloat(t)
	for i := 0; i < 500; i++ {
		amount := int64(rng.Intn(5000) + 1)
		var err error
		if rng.Intn(3) == 0 {
			f, _, err = RecordRemittance(f, amount)
		} else {
			f, err = RecordCollection(f, amount)
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if f.CurrentBalance != f.TotalCollected-f.TotalRemitted || f.CurrentBalance < 0 {
			t.Fatalf("step %d: balance %d collected %d remitted %d", i, f.CurrentBalance, f.TotalCollected, f.TotalRemitted)
		}
	}
	if f.TransactionCount != 500 {
		t.Fatalf("transaction count = %d", f.TransactionCount)
	}
}

func TestRecordRemittanceClamps(t *testing.T) {
	f, _ := RecordCollection(newFloat(t), 1000)
	f, applied, err := RecordRemittance(f, 1500)
	if err != nil {
		t.Fatalf("remit: %v", err)
	}
	if applied != 1000 || f.CurrentBalance != 0 || f.TotalRemitted != 1000 {
		t.Fatalf("applied %d float %+v", applied, f)
	}
}

func TestAmountsMustBePositive(t *testing.T) {
	f := newFloat(t)
	var ve *types.ValidationError
	if _, err := RecordCollection(f, 0); !errors.As(err, &ve) {
		t.Errorf("collection: expected ValidationError, got %v", err)
	}
	if _, _, err := RecordRemittance(f, -1); !errors.As(err, &ve) {
		t.Errorf("remittance: expected ValidationError, got %v", err)
	}
}

func TestComputeTrustLimit(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		h    DriverHistory
		want int64
	}{
		{"new driver", DriverHistory{}, 50000},
		{"volume without clean record", DriverHistory{CompletedDeliveries: 600, Reconciliations: 100, CleanReconciliations: 93}, 50000},
		{"mid volume, good record", DriverHistory{CompletedDeliveries: 600, Reconciliations: 100, CleanReconciliations: 97}, 200000},
		{"top volume, perfect", DriverHistory{CompletedDeliveries: 1500, Reconciliations: 50, CleanReconciliations: 50}, 300000},
		{"volume but poor reconciliation", DriverHistory{CompletedDeliveries: 1500, Reconciliations: 50, CleanReconciliations: 40}, 25000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeTrustLimit(tt.h, cfg); got != tt.want {
				t.Errorf("limit = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCanAcceptCashOrder(t *testing.T) {
	f := newFloat(t)
	f, _ = RecordCollection(f, 45000)
	if !CanAcceptCashOrder(f, 5000) {
		t.Error("exactly at the limit should be accepted")
	}
	if CanAcceptCashOrder(f, 5001) {
		t.Error("over the limit should be refused")
	}
}

func TestReconcileCashFloat(t *testing.T) {
	f, _ := RecordCollection(newFloat(t), 10000)
	f, _, _ = RecordRemittance(f, 4000)

	clean, alert := ReconcileCashFloat(f, 6050, 100, now)
	if alert != nil {
		t.Fatalf("within tolerance should not alert: %+v", alert)
	}
	if clean.LastReconciliation == nil || !clean.LastReconciliation.Equal(now) {
		t.Fatal("reconciliation time not stamped")
	}

	after, alert := ReconcileCashFloat(f, 5000, 100, now)
	if alert == nil || alert.Discrepancy != -1000 || alert.Severity != SeverityWarning {
		t.Fatalf("expected warning alert, got %+v", alert)
	}
	if after.CurrentBalance != 6000 || after.TotalCollected != 10000 {
		t.Fatalf("reconciliation must not correct balances: %+v", after)
	}

	_, alert = ReconcileCashFloat(f, 0, 100, now)
	if alert == nil || alert.Severity != SeverityCritical {
		t.Fatalf("expected critical alert, got %+v", alert)
	}

	drifted := f
	drifted.CurrentBalance += 500
	if _, alert := ReconcileCashFloat(drifted, 6000, 100, now); alert == nil || alert.Recorded != 6500 {
		t.Fatalf("recorded drift should alert, got %+v", alert)
	}
}

func TestCreateDepositRequest(t *testing.T) {
	cfg := DefaultConfig()
	f, _ := RecordCollection(newFloat(t), 39999)
	if _, req := CreateDepositRequest(f, cfg, now); req != nil {
		t.Fatal("below 80% should not request a deposit")
	}

	f, _ = RecordCollection(f, 1)
	f, req := CreateDepositRequest(f, cfg, now)
	if req == nil || req.Amount != 40000 || !req.DueBy.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("expected deposit request, got %+v", req)
	}
	if f.PendingRemittance != 40000 {
		t.Fatalf("pending = %d", f.PendingRemittance)
	}
	if _, again := CreateDepositRequest(f, cfg, now); again != nil {
		t.Fatal("an open request already covers the balance")
	}

	f, _, _ = RecordRemittance(f, 40000)
	if f.PendingRemittance != 0 {
		t.Fatalf("pending after remittance = %d", f.PendingRemittance)
	}
}

func TestApplySettlement(t *testing.T) {
	f := newFloat(t)
	cash := settlement.Settlement{DriverID: "drv-1", PaymentMethod: types.PaymentCash, TotalCharged: 11800}
	next, err := ApplySettlement(f, cash)
	if err != nil || next.CurrentBalance != 11800 {
		t.Fatalf("cash settlement: %+v %v", next, err)
	}

	card := cash
	card.PaymentMethod = types.PaymentCard
	if next, _ := ApplySettlement(f, card); next.CurrentBalance != 0 {
		t.Fatal("card payment must not touch the float")
	}

	other := cash
	other.DriverID = "drv-2"
	if _, err := ApplySettlement(f, other); err == nil {
		t.Fatal("expected driver mismatch error")
	}
}

func newService() *Service {
	return NewService(NewMemoryStore(), DefaultConfig(), logger.Nop()).WithClock(func() time.Time { return now })
}

func TestServiceCollectAndRemit(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	res, err := svc.Collect(ctx, "drv-1", 42000)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if res.Deposit == nil || res.Float.Version != 1 {
		t.Fatalf("expected deposit request at version 1, got %+v", res)
	}
	ok, err := svc.CanAcceptCashOrder(ctx, "drv-1", 9000)
	if err != nil || ok {
		t.Fatalf("can accept: %v %v", ok, err)
	}

	f, err := svc.Remit(ctx, "drv-1", 50000)
	if err != nil || f.CurrentBalance != 0 || f.TotalRemitted != 42000 {
		t.Fatalf("remit: %+v %v", f, err)
	}

	_, alert, err := svc.Reconcile(ctx, "drv-1", 300)
	if err != nil || alert == nil {
		t.Fatalf("reconcile: %+v %v", alert, err)
	}

	f, err = svc.RefreshTrustLimit(ctx, "drv-1", DriverHistory{CompletedDeliveries: 150})
	if err != nil || f.TrustLimit != 100000 {
		t.Fatalf("refresh: %+v %v", f, err)
	}
}

func TestServiceApplySettlementSkipsCard(t *testing.T) {
	svc := newService()
	res, err := svc.ApplySettlement(context.Background(), settlement.Settlement{DriverID: "drv-1", PaymentMethod: types.PaymentCard, TotalCharged: 100})
	if err != nil || res.Float.DriverID != "" {
		t.Fatalf("card settlement should be a no-op: %+v %v", res, err)
	}
}

func TestServiceConcurrentCollections(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	if _, err := svc.Get(ctx, "drv-1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Collect(ctx, "drv-1", 100)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrConflict) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	f, _ := svc.Get(ctx, "drv-1")
	if f.CurrentBalance != int64(succeeded)*100 || f.TransactionCount != succeeded {
		t.Fatalf("balance %d after %d successful collections", f.CurrentBalance, succeeded)
	}
}
