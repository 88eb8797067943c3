// README: Settlement service computes and records order splits, refunds and payouts.
package settlement

import (
	"context"
	"errors"
	"time"

	"tawsil/internal/logger"
	"tawsil/internal/types"
)

// ErrNotSettled is returned for orders with no ledger entries.
var ErrNotSettled = errors.New("order not settled")

type Service struct {
	ledger Ledger
	cfg    Config
	log    logger.ILogger
	now    func() time.Time
}

func NewService(ledger Ledger, cfg Config, log logger.ILogger) *Service {
	return &Service{ledger: ledger, cfg: cfg, log: logger.Component(log, "settlement"), now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Preview computes the split without booking it.
func (s *Service) Preview(in OrderInput) (Settlement, error) {
	return SettleOrder(in, s.cfg, s.now())
}

// Settle computes the split for a delivered order and appends its entries.
func (s *Service) Settle(ctx context.Context, in OrderInput) (Settlement, []LedgerEntry, error) {
	st, err := SettleOrder(in, s.cfg, s.now())
	if err != nil {
		return Settlement{}, nil, err
	}
	entries := GenerateLedgerEntries(st)
	if err := s.ledger.Append(ctx, entries); err != nil {
		return Settlement{}, nil, err
	}
	s.log.Info("order settled",
		logger.String("order_id", string(st.OrderID)),
		logger.Int64("total_charged", st.TotalCharged),
		logger.Int64("commission", st.Commission),
		logger.Int64("driver_pay", st.DriverPay.Total),
		logger.Int64("restaurant_payout", st.RestaurantPayout),
		logger.Int("entries", len(entries)),
	)
	if st.RestaurantShortfall > 0 {
		s.log.Warning("restaurant payout floored at zero",
			logger.String("order_id", string(st.OrderID)),
			logger.Int64("shortfall", st.RestaurantShortfall),
		)
	}
	return st, entries, nil
}

func (s *Service) Refund(ctx context.Context, st Settlement, amount int64, reason string) (Refund, error) {
	r, err := CreateRefund(st, amount, reason, s.now())
	if err != nil {
		return Refund{}, err
	}
	if err := s.ledger.Append(ctx, r.Entries); err != nil {
		return Refund{}, err
	}
	s.log.Info("refund recorded",
		logger.String("order_id", string(st.OrderID)),
		logger.Int64("amount", amount),
	)
	return r, nil
}

// Entries returns every ledger entry booked against an order.
func (s *Service) Entries(ctx context.Context, orderID types.ID) ([]LedgerEntry, error) {
	return s.ledger.ByReference(ctx, orderID)
}

// Payouts builds and stores one payout per payee for the given requests.
func (s *Service) Payouts(ctx context.Context, reqs []PayoutRequest) ([]Payout, error) {
	payouts, err := BatchCreatePayouts(reqs, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.ledger.SavePayouts(ctx, payouts); err != nil {
		return nil, err
	}
	s.log.Info("payouts created", logger.Int("payouts", len(payouts)), logger.Int("requests", len(reqs)))
	return payouts, nil
}

// RefundOrder refunds against what is still booked for orderID, so prior
// refunds reduce the refundable amount.
func (s *Service) RefundOrder(ctx context.Context, orderID types.ID, amount int64, reason string) (Refund, error) {
	entries, err := s.ledger.ByReference(ctx, orderID)
	if err != nil {
		return Refund{}, err
	}
	if len(entries) == 0 {
		return Refund{}, ErrNotSettled
	}
	st := Settlement{OrderID: orderID, Currency: entries[0].Currency, TotalCharged: SumEntries(entries)}
	return s.Refund(ctx, st, amount, reason)
}

// PayoutOrders pays every payee booked on the given orders.
func (s *Service) PayoutOrders(ctx context.Context, orderIDs []types.ID) ([]Payout, error) {
	var reqs []PayoutRequest
	for _, id := range orderIDs {
		entries, err := s.ledger.ByReference(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, ErrNotSettled
		}
		reqs = append(reqs, PayoutRequestsFromLedger(entries)...)
	}
	return s.Payouts(ctx, reqs)
}
