// README: Driver cash float state, trust tiers and reconciliation findings.
package cashfloat

import (
	"time"

	"tawsil/internal/types"
)

// CashFloat is the cash-on-delivery money a driver currently holds.
// CurrentBalance always equals TotalCollected - TotalRemitted.
type CashFloat struct {
	DriverID           types.ID   `json:"driver_id"`
	CurrentBalance     int64      `json:"current_balance"`
	TrustLimit         int64      `json:"trust_limit"`
	TotalCollected     int64      `json:"total_collected"`
	TotalRemitted      int64      `json:"total_remitted"`
	PendingRemittance  int64      `json:"pending_remittance"`
	LastReconciliation *time.Time `json:"last_reconciliation,omitempty"`
	TransactionCount   int        `json:"transaction_count"`
	Version            int        `json:"version"`
}

type TrustTier struct {
	MinDeliveries         int
	MinReconciliationRate float64
	Limit                 int64
}

type Config struct {
	// Tiers are sorted by MinDeliveries ascending. The first tier is the
	// starting limit for new drivers.
	Tiers []TrustTier

	// Below DegradeBelowRate the limit drops to DegradedLimit whatever the
	// delivery volume.
	DegradeBelowRate   float64
	DegradedLimit      int64
	DepositThreshold   float64
	DepositDueAfter    time.Duration
	ReconcileTolerance int64
}

func DefaultConfig() Config {
	return Config{
		Tiers: []TrustTier{
			{MinDeliveries: 0, MinReconciliationRate: 0, Limit: 50000},
			{MinDeliveries: 100, MinReconciliationRate: 0.95, Limit: 100000},
			{MinDeliveries: 500, MinReconciliationRate: 0.97, Limit: 200000},
			{MinDeliveries: 1000, MinReconciliationRate: 0.98, Limit: 300000},
		},
		DegradeBelowRate:   0.90,
		DegradedLimit:      25000,
		DepositThreshold:   0.80,
		DepositDueAfter:    24 * time.Hour,
		ReconcileTolerance: 100,
	}
}

// DriverHistory comes from the driver registry.
type DriverHistory struct {
	CompletedDeliveries  int
	Reconciliations      int
	CleanReconciliations int
}

// ReconciliationRate is the share of reconciliations without an alert.
// Drivers never reconciled count as clean.
func (h DriverHistory) ReconciliationRate() float64 {
	if h.Reconciliations <= 0 {
		return 1
	}
	return float64(h.CleanReconciliations) / float64(h.Reconciliations)
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ReconciliationAlert is a finding for ops review. It never blocks further
// operations and nothing is corrected automatically.
type ReconciliationAlert struct {
	DriverID    types.ID  `json:"driver_id"`
	Expected    int64     `json:"expected"`
	Reported    int64     `json:"reported"`
	Recorded    int64     `json:"recorded"`
	Discrepancy int64     `json:"discrepancy"`
	Severity    Severity  `json:"severity"`
	DetectedAt  time.Time `json:"detected_at"`
}

type DepositRequest struct {
	ID        types.ID  `json:"id"`
	DriverID  types.ID  `json:"driver_id"`
	Amount    int64     `json:"amount"`
	DueBy     time.Time `json:"due_by"`
	CreatedAt time.Time `json:"created_at"`
}
