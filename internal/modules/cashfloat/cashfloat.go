// README: Cash float operations. All functions return a new value and leave the input untouched.
package cashfloat

import (
	"time"

	"github.com/google/uuid"

	"tawsil/internal/modules/settlement"
	"tawsil/internal/types"
)

// New opens a float at the starting trust tier.
func New(driverID types.ID, cfg Config) (CashFloat, error) {
	if driverID == "" {
		return CashFloat{}, types.Invalid("driver_id", "must not be empty")
	}
	f := CashFloat{DriverID: driverID}
	if len(cfg.Tiers) > 0 {
		f.TrustLimit = cfg.Tiers[0].Limit
	}
	return f, nil
}

// RecordCollection adds cash collected from a customer. It always records:
// refusing would hide money the driver already holds. Use
// CanAcceptCashOrder before assigning cash orders.
func RecordCollection(f CashFloat, amount int64) (CashFloat, error) {
	if amount <= 0 {
		return CashFloat{}, types.Invalid("amount", "collection must be positive, got %d", amount)
	}
	f.CurrentBalance += amount
	f.TotalCollected += amount
	f.TransactionCount++
	return f, nil
}

// RecordRemittance books cash handed back to the platform. The applied
// amount is clamped to the balance so it never goes negative; the second
// return value is what was actually applied.
func RecordRemittance(f CashFloat, amount int64) (CashFloat, int64, error) {
	if amount <= 0 {
		return CashFloat{}, 0, types.Invalid("amount", "remittance must be positive, got %d", amount)
	}
	applied := amount
	if applied > f.CurrentBalance {
		applied = f.CurrentBalance
	}
	f.CurrentBalance -= applied
	f.TotalRemitted += applied
	f.PendingRemittance -= applied
	if f.PendingRemittance < 0 {
		f.PendingRemittance = 0
	}
	f.TransactionCount++
	return f, applied, nil
}

// ComputeTrustLimit picks the highest tier the driver's volume and
// reconciliation rate both qualify for. Poor reconciliation overrides
// volume.
func ComputeTrustLimit(h DriverHistory, cfg Config) int64 {
	rate := h.ReconciliationRate()
	if rate < cfg.DegradeBelowRate {
		return cfg.DegradedLimit
	}
	var limit int64
	for _, t := range cfg.Tiers {
		if h.CompletedDeliveries >= t.MinDeliveries && rate >= t.MinReconciliationRate && t.Limit > limit {
			limit = t.Limit
		}
	}
	return limit
}

func WithTrustLimit(f CashFloat, limit int64) CashFloat {
	f.TrustLimit = limit
	return f
}

// CanAcceptCashOrder reports whether collecting amount keeps the driver
// within the trust limit.
func CanAcceptCashOrder(f CashFloat, amount int64) bool {
	return f.CurrentBalance+amount <= f.TrustLimit
}

// ReconcileCashFloat compares a driver-reported balance with the recorded
// totals. The float only gets a new LastReconciliation stamp; balances are
// never corrected here.
func ReconcileCashFloat(f CashFloat, reported int64, tolerance int64, now time.Time) (CashFloat, *ReconciliationAlert) {
	expected := f.TotalCollected - f.TotalRemitted
	stamp := now
	f.LastReconciliation = &stamp

	discrepancy := reported - expected
	drift := f.CurrentBalance - expected
	if abs(discrepancy) <= tolerance && drift == 0 {
		return f, nil
	}
	worst := abs(discrepancy)
	if abs(drift) > worst {
		worst = abs(drift)
	}
	sev := SeverityWarning
	if worst > 10*tolerance {
		sev = SeverityCritical
	}
	return f, &ReconciliationAlert{
		DriverID:    f.DriverID,
		Expected:    expected,
		Reported:    reported,
		Recorded:    f.CurrentBalance,
		Discrepancy: discrepancy,
		Severity:    sev,
		DetectedAt:  now,
	}
}

// CreateDepositRequest asks the driver to remit the whole balance once it
// reaches the deposit threshold of the trust limit. It returns nil when no
// request is due or one already covers the balance.
func CreateDepositRequest(f CashFloat, cfg Config, now time.Time) (CashFloat, *DepositRequest) {
	if f.TrustLimit <= 0 || f.CurrentBalance <= f.PendingRemittance {
		return f, nil
	}
	if float64(f.CurrentBalance) < cfg.DepositThreshold*float64(f.TrustLimit) {
		return f, nil
	}
	req := &DepositRequest{
		ID:        types.ID(uuid.NewString()),
		DriverID:  f.DriverID,
		Amount:    f.CurrentBalance,
		DueBy:     now.Add(cfg.DepositDueAfter),
		CreatedAt: now,
	}
	f.PendingRemittance = f.CurrentBalance
	return f, req
}

// ApplySettlement records the cash a driver collected for a settled
// cash-on-delivery order. Other payment methods leave the float unchanged.
func ApplySettlement(f CashFloat, s settlement.Settlement) (CashFloat, error) {
	if s.PaymentMethod != types.PaymentCash {
		return f, nil
	}
	if s.DriverID != f.DriverID {
		return CashFloat{}, types.Invalid("driver_id", "settlement for %s applied to float of %s", s.DriverID, f.DriverID)
	}
	return RecordCollection(f, s.TotalCharged)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
