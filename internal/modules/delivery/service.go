// README: Delivery service applies lifecycle transitions and persists them with optimistic locking.
package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tawsil/internal/logger"
	"tawsil/internal/types"
)

var (
	ErrNotFound = errors.New("delivery not found")
	ErrConflict = errors.New("delivery state conflict")
)

type Service struct {
	repo Repository
	log  logger.ILogger
	now  func() time.Time
}

func NewService(repo Repository, log logger.ILogger) *Service {
	return &Service{repo: repo, log: logger.Component(log, "delivery"), now: time.Now}
}

// WithClock replaces the wall clock, mainly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateCommand struct {
	OrderID     types.ID
	City        string
	Pickup      types.Point
	Dropoff     types.Point
	DeliveryFee int64
}

type TransitionCommand struct {
	DeliveryID types.ID
	To         Status
	Reason     string
}

type AssignCommand struct {
	DeliveryID types.ID
	DriverID   types.ID
}

type LocationCommand struct {
	DeliveryID types.ID
	Position   types.Point
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (Tracking, error) {
	t, err := NewTracking(types.ID(uuid.NewString()), cmd.OrderID, cmd.City, cmd.Pickup, cmd.Dropoff, s.now())
	if err != nil {
		return Tracking{}, err
	}
	if cmd.DeliveryFee < 0 {
		return Tracking{}, types.Invalid("delivery_fee", "must be >= 0")
	}
	t.DeliveryFee = cmd.DeliveryFee
	if err := s.repo.Create(ctx, t); err != nil {
		return Tracking{}, err
	}
	s.log.Info("delivery created",
		logger.String("delivery_id", string(t.ID)),
		logger.String("order_id", string(t.OrderID)),
	)
	return t, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (Tracking, error) {
	return s.repo.Get(ctx, id)
}

// Transition applies one edge. A concurrent writer that saved first makes
// this call fail with ErrConflict; the caller decides whether to re-read.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (Tracking, error) {
	return s.mutate(ctx, cmd.DeliveryID, func(t Tracking, now time.Time) (Tracking, error) {
		return TransitionStatus(t, cmd.To, cmd.Reason, now)
	})
}

func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (Tracking, error) {
	return s.mutate(ctx, cmd.DeliveryID, func(t Tracking, now time.Time) (Tracking, error) {
		return AssignDriver(t, cmd.DriverID, now)
	})
}

func (s *Service) UpdateLocation(ctx context.Context, cmd LocationCommand) (Tracking, error) {
	return s.mutate(ctx, cmd.DeliveryID, func(t Tracking, now time.Time) (Tracking, error) {
		return UpdateDriverLocation(t, cmd.Position, now)
	})
}

// SetEstimates persists predicted pickup/delivery times.
func (s *Service) SetEstimates(ctx context.Context, id types.ID, pickupAt, deliveryAt *time.Time) (Tracking, error) {
	return s.mutate(ctx, id, func(t Tracking, _ time.Time) (Tracking, error) {
		return WithEstimates(t, pickupAt, deliveryAt), nil
	})
}

func (s *Service) mutate(ctx context.Context, id types.ID, fn func(Tracking, time.Time) (Tracking, error)) (Tracking, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tracking{}, err
	}
	next, err := fn(cur, s.now())
	if err != nil {
		return Tracking{}, err
	}
	ok, err := s.repo.Update(ctx, next, cur.Version)
	if err != nil {
		return Tracking{}, err
	}
	if !ok {
		return Tracking{}, ErrConflict
	}
	next.Version = cur.Version + 1
	if next.Status != cur.Status {
		s.log.Info("delivery status changed",
			logger.String("delivery_id", string(id)),
			logger.String("from", string(cur.Status)),
			logger.String("to", string(next.Status)),
		)
	}
	return next, nil
}
