// README: Order service mirrors accepted orders and driver counters for dispatch.
package order

import (
	"context"
	"errors"
	"time"

	"tawsil/internal/geo"
	"tawsil/internal/logger"
	"tawsil/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid order state transition")
	ErrNotFound     = errors.New("order or driver not found")
	ErrConflict     = errors.New("order state conflict")
)

type Service struct {
	repo Repository
	log  logger.ILogger
	now  func() time.Time
}

func NewService(repo Repository, log logger.ILogger) *Service {
	return &Service{repo: repo, log: logger.Component(log, "order"), now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type ImportCommand struct {
	OrderID       types.ID
	RestaurantID  types.ID
	City          string
	ZoneID        string
	Zone          geo.Circle
	Pickup        types.Point
	Dropoff       types.Point
	PaymentMethod types.PaymentMethod
	Amount        int64
	Tip           int64
}

func (c ImportCommand) validate() error {
	if c.OrderID == "" {
		return types.Invalid("order_id", "must not be empty")
	}
	if c.RestaurantID == "" {
		return types.Invalid("restaurant_id", "must not be empty")
	}
	if c.ZoneID == "" || c.Zone.RadiusKm <= 0 {
		return types.Invalid("zone", "zone id and a positive radius are required")
	}
	for _, p := range []types.Point{c.Zone.Center, c.Pickup, c.Dropoff} {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	switch c.PaymentMethod {
	case types.PaymentCash, types.PaymentCard, types.PaymentWallet:
	default:
		return types.Invalid("payment_method", "unknown method %q", c.PaymentMethod)
	}
	if c.Amount <= 0 {
		return types.Invalid("amount", "must be positive")
	}
	if c.Tip < 0 {
		return types.Invalid("tip", "must not be negative")
	}
	return nil
}

// Import records an order the restaurant has accepted. Importing the same
// id twice returns ErrConflict.
func (s *Service) Import(ctx context.Context, cmd ImportCommand) (Order, error) {
	if err := cmd.validate(); err != nil {
		return Order{}, err
	}
	o := Order{
		ID:            cmd.OrderID,
		RestaurantID:  cmd.RestaurantID,
		City:          cmd.City,
		ZoneID:        cmd.ZoneID,
		Zone:          cmd.Zone,
		Pickup:        cmd.Pickup,
		Dropoff:       cmd.Dropoff,
		PaymentMethod: cmd.PaymentMethod,
		Amount:        cmd.Amount,
		Tip:           cmd.Tip,
		Status:        StatusAccepted,
		CreatedAt:     s.now(),
	}
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return Order{}, err
	}
	s.log.Info("order imported",
		logger.String("order_id", string(o.ID)),
		logger.String("zone_id", o.ZoneID),
		logger.String("payment_method", string(o.PaymentMethod)),
	)
	return o, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ActiveOrders counts open orders in a zone.
func (s *Service) ActiveOrders(ctx context.Context, zoneID string) (int, error) {
	return s.repo.CountActive(ctx, zoneID)
}

func (s *Service) Cancel(ctx context.Context, id types.ID, reason string) (Order, error) {
	o, err := s.transition(ctx, id, StatusCancelled)
	if err != nil {
		return Order{}, err
	}
	s.log.Info("order cancelled", logger.String("order_id", string(id)), logger.String("reason", reason))
	return o, nil
}

func (s *Service) transition(ctx context.Context, id types.ID, to Status) (Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, to) {
		return Order{}, ErrInvalidState
	}
	at := s.now()
	ok, err := s.repo.UpdateStatus(ctx, id, o.Status, to, o.StatusVersion, at)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, ErrConflict
	}
	o.Status = to
	o.StatusVersion++
	o.ClosedAt = &at
	return o, nil
}

type DriverCommand struct {
	DriverID            types.ID
	VehicleType         string
	CompletedDeliveries int
}

// RegisterDriver opens a driver profile or updates its vehicle. Counters of
// an existing profile are kept.
func (s *Service) RegisterDriver(ctx context.Context, cmd DriverCommand) (Driver, error) {
	if cmd.DriverID == "" {
		return Driver{}, types.Invalid("driver_id", "must not be empty")
	}
	if cmd.CompletedDeliveries < 0 {
		return Driver{}, types.Invalid("completed_deliveries", "must not be negative")
	}
	now := s.now()
	d := Driver{
		ID:                  cmd.DriverID,
		VehicleType:         cmd.VehicleType,
		Month:               monthKey(now),
		CompletedDeliveries: cmd.CompletedDeliveries,
		UpdatedAt:           now,
	}
	err := s.repo.CreateDriver(ctx, d)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrConflict) {
		return Driver{}, err
	}
	return s.mutateDriver(ctx, cmd.DriverID, func(d Driver, now time.Time) Driver {
		d.VehicleType = cmd.VehicleType
		d.UpdatedAt = now
		return d
	})
}

// Driver returns the profile with MonthlyOrders already rolled to the
// current month.
func (s *Service) Driver(ctx context.Context, id types.ID) (Driver, error) {
	d, err := s.repo.GetDriver(ctx, id)
	if err != nil {
		return Driver{}, err
	}
	d.MonthlyOrders = d.OrdersThisMonth(s.now())
	return d, nil
}

// RecordDelivery closes the order as delivered and bumps the driver's
// counters. Recording an already delivered order is a no-op.
func (s *Service) RecordDelivery(ctx context.Context, orderID, driverID types.ID, onTime bool) (Driver, error) {
	if _, err := s.transition(ctx, orderID, StatusDelivered); err != nil {
		if !errors.Is(err, ErrInvalidState) {
			return Driver{}, err
		}
		o, gerr := s.repo.GetOrder(ctx, orderID)
		if gerr != nil || o.Status != StatusDelivered {
			return Driver{}, err
		}
		return s.Driver(ctx, driverID)
	}
	d, err := s.mutateDriver(ctx, driverID, func(d Driver, now time.Time) Driver {
		return RecordDelivery(d, onTime, now)
	})
	if err != nil {
		return Driver{}, err
	}
	s.log.Info("delivery recorded",
		logger.String("order_id", string(orderID)),
		logger.String("driver_id", string(driverID)),
		logger.Bool("on_time", onTime),
		logger.Int("streak", d.Streak),
	)
	return d, nil
}

func (s *Service) mutateDriver(ctx context.Context, id types.ID, fn func(Driver, time.Time) Driver) (Driver, error) {
	cur, err := s.repo.GetDriver(ctx, id)
	if err != nil {
		return Driver{}, err
	}
	next := fn(cur, s.now())
	ok, err := s.repo.UpdateDriver(ctx, next, cur.Version)
	if err != nil {
		return Driver{}, err
	}
	if !ok {
		return Driver{}, ErrConflict
	}
	next.Version = cur.Version + 1
	return next, nil
}
