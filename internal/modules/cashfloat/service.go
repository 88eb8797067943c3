// README: Cash float service persists driver cash movements with optimistic locking and raises ops warnings.
package cashfloat

import (
	"context"
	"errors"
	"time"

	"tawsil/internal/logger"
	"tawsil/internal/modules/settlement"
	"tawsil/internal/types"
)

var (
	ErrNotFound = errors.New("cash float not found")
	ErrConflict = errors.New("cash float update conflict")
)

type Service struct {
	repo Repository
	cfg  Config
	log  logger.ILogger
	now  func() time.Time
}

func NewService(repo Repository, cfg Config, log logger.ILogger) *Service {
	return &Service{repo: repo, cfg: cfg, log: logger.Component(log, "cashfloat"), now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Get returns the driver's float, opening one on first use.
func (s *Service) Get(ctx context.Context, driverID types.ID) (CashFloat, error) {
	f, err := s.repo.Get(ctx, driverID)
	if !errors.Is(err, ErrNotFound) {
		return f, err
	}
	f, err = New(driverID, s.cfg)
	if err != nil {
		return CashFloat{}, err
	}
	if err := s.repo.Create(ctx, f); err != nil && !errors.Is(err, ErrConflict) {
		return CashFloat{}, err
	}
	return s.repo.Get(ctx, driverID)
}

// CanAcceptCashOrder reports whether the driver may take a cash order of
// amount without exceeding the trust limit.
func (s *Service) CanAcceptCashOrder(ctx context.Context, driverID types.ID, amount int64) (bool, error) {
	f, err := s.Get(ctx, driverID)
	if err != nil {
		return false, err
	}
	return CanAcceptCashOrder(f, amount), nil
}

type CollectionResult struct {
	Float   CashFloat       `json:"float"`
	Deposit *DepositRequest `json:"deposit,omitempty"`
}

// Collect records cash taken from a customer and issues a deposit request
// once the balance nears the trust limit.
func (s *Service) Collect(ctx context.Context, driverID types.ID, amount int64) (CollectionResult, error) {
	return s.collect(ctx, driverID, func(f CashFloat) (CashFloat, error) {
		return RecordCollection(f, amount)
	})
}

// ApplySettlement records a settled cash-on-delivery order.
func (s *Service) ApplySettlement(ctx context.Context, st settlement.Settlement) (CollectionResult, error) {
	if st.PaymentMethod != types.PaymentCash {
		return CollectionResult{}, nil
	}
	return s.collect(ctx, st.DriverID, func(f CashFloat) (CashFloat, error) {
		return ApplySettlement(f, st)
	})
}

func (s *Service) collect(ctx context.Context, driverID types.ID, fn func(CashFloat) (CashFloat, error)) (CollectionResult, error) {
	var res CollectionResult
	f, err := s.mutate(ctx, driverID, func(f CashFloat, now time.Time) (CashFloat, error) {
		next, err := fn(f)
		if err != nil {
			return CashFloat{}, err
		}
		next, res.Deposit = CreateDepositRequest(next, s.cfg, now)
		return next, nil
	})
	if err != nil {
		return CollectionResult{}, err
	}
	res.Float = f
	if f.CurrentBalance > f.TrustLimit {
		s.log.Warning("trust limit exceeded",
			logger.String("driver_id", string(driverID)),
			logger.Int64("balance", f.CurrentBalance),
			logger.Int64("trust_limit", f.TrustLimit),
		)
	}
	if res.Deposit != nil {
		s.log.Info("deposit requested",
			logger.String("driver_id", string(driverID)),
			logger.Int64("amount", res.Deposit.Amount),
			logger.Time("due_by", res.Deposit.DueBy),
		)
	}
	return res, nil
}

// Remit records cash handed back by the driver. Any excess over the
// balance is ignored and logged.
func (s *Service) Remit(ctx context.Context, driverID types.ID, amount int64) (CashFloat, error) {
	var applied int64
	f, err := s.mutate(ctx, driverID, func(f CashFloat, _ time.Time) (CashFloat, error) {
		next, a, err := RecordRemittance(f, amount)
		applied = a
		return next, err
	})
	if err != nil {
		return CashFloat{}, err
	}
	if applied < amount {
		s.log.Warning("remittance exceeds balance",
			logger.String("driver_id", string(driverID)),
			logger.Int64("amount", amount),
			logger.Int64("applied", applied),
		)
	}
	return f, nil
}

// Reconcile compares a reported balance with the records. An alert is a
// finding, not an error.
func (s *Service) Reconcile(ctx context.Context, driverID types.ID, reported int64) (CashFloat, *ReconciliationAlert, error) {
	var alert *ReconciliationAlert
	f, err := s.mutate(ctx, driverID, func(f CashFloat, now time.Time) (CashFloat, error) {
		var next CashFloat
		next, alert = ReconcileCashFloat(f, reported, s.cfg.ReconcileTolerance, now)
		return next, nil
	})
	if err != nil {
		return CashFloat{}, nil, err
	}
	if alert != nil {
		s.log.Warning("cash float reconciliation alert",
			logger.String("driver_id", string(driverID)),
			logger.Int64("expected", alert.Expected),
			logger.Int64("reported", alert.Reported),
			logger.Int64("discrepancy", alert.Discrepancy),
			logger.String("severity", string(alert.Severity)),
		)
	}
	return f, alert, nil
}

// RefreshTrustLimit recomputes the limit from the driver's history.
func (s *Service) RefreshTrustLimit(ctx context.Context, driverID types.ID, h DriverHistory) (CashFloat, error) {
	return s.mutate(ctx, driverID, func(f CashFloat, _ time.Time) (CashFloat, error) {
		return WithTrustLimit(f, ComputeTrustLimit(h, s.cfg)), nil
	})
}

func (s *Service) mutate(ctx context.Context, driverID types.ID, fn func(CashFloat, time.Time) (CashFloat, error)) (CashFloat, error) {
	cur, err := s.Get(ctx, driverID)
	if err != nil {
		return CashFloat{}, err
	}
	next, err := fn(cur, s.now())
	if err != nil {
		return CashFloat{}, err
	}
	ok, err := s.repo.Update(ctx, next, cur.Version)
	if err != nil {
		return CashFloat{}, err
	}
	if !ok {
		return CashFloat{}, ErrConflict
	}
	next.Version = cur.Version + 1
	return next, nil
}
