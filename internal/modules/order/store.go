// README: Order and driver store backed by PostgreSQL; status and driver updates use version checks.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tawsil/internal/types"
)

// Repository persists orders and drivers. UpdateStatus and UpdateDriver
// succeed only when the stored version matches.
type Repository interface {
	CreateOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id types.ID) (Order, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error)
	CountActive(ctx context.Context, zoneID string) (int, error)

	CreateDriver(ctx context.Context, d Driver) error
	GetDriver(ctx context.Context, id types.ID) (Driver, error)
	UpdateDriver(ctx context.Context, d Driver, expectedVersion int) (bool, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) CreateOrder(ctx context.Context, o Order) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (
			id, restaurant_id, city, zone_id, zone_lat, zone_lng, zone_radius_km,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			payment_method, amount, tip, status, status_version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 0, $16)`,
		string(o.ID), string(o.RestaurantID), o.City, o.ZoneID,
		o.Zone.Center.Lat, o.Zone.Center.Lng, o.Zone.RadiusKm,
		o.Pickup.Lat, o.Pickup.Lng, o.Dropoff.Lat, o.Dropoff.Lng,
		string(o.PaymentMethod), o.Amount, o.Tip, string(o.Status), o.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create order %s: %w", o.ID, err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id types.ID) (Order, error) {
	var (
		o             Order
		method, state string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, restaurant_id, city, zone_id, zone_lat, zone_lng, zone_radius_km,
		       pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		       payment_method, amount, tip, status, status_version, created_at, closed_at
		FROM orders
		WHERE id = $1`, string(id),
	).Scan(
		&o.ID, &o.RestaurantID, &o.City, &o.ZoneID, &o.Zone.Center.Lat, &o.Zone.Center.Lng, &o.Zone.RadiusKm,
		&o.Pickup.Lat, &o.Pickup.Lng, &o.Dropoff.Lat, &o.Dropoff.Lng,
		&method, &o.Amount, &o.Tip, &state, &o.StatusVersion, &o.CreatedAt, &o.ClosedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	o.PaymentMethod = types.PaymentMethod(method)
	o.Status = Status(state)
	return o, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $3, status_version = status_version + 1, closed_at = $5
		WHERE id = $1 AND status = $2 AND status_version = $4`,
		string(id), string(from), string(to), version, at,
	)
	if err != nil {
		return false, fmt.Errorf("update order %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CountActive(ctx context.Context, zoneID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders WHERE zone_id = $1 AND status = $2`,
		zoneID, string(StatusAccepted),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active orders %s: %w", zoneID, err)
	}
	return n, nil
}

func (s *Store) CreateDriver(ctx context.Context, d Driver) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO drivers (
			id, vehicle_type, monthly_orders, month, completed_deliveries, streak, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
		ON CONFLICT (id) DO NOTHING`,
		string(d.ID), d.VehicleType, d.MonthlyOrders, d.Month, d.CompletedDeliveries, d.Streak, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create driver %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Store) GetDriver(ctx context.Context, id types.ID) (Driver, error) {
	var d Driver
	err := s.db.QueryRow(ctx, `
		SELECT id, vehicle_type, monthly_orders, month, completed_deliveries, streak, version, updated_at
		FROM drivers
		WHERE id = $1`, string(id),
	).Scan(&d.ID, &d.VehicleType, &d.MonthlyOrders, &d.Month, &d.CompletedDeliveries, &d.Streak, &d.Version, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Driver{}, ErrNotFound
	}
	if err != nil {
		return Driver{}, fmt.Errorf("get driver %s: %w", id, err)
	}
	return d, nil
}

func (s *Store) UpdateDriver(ctx context.Context, d Driver, expectedVersion int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers
		SET vehicle_type = $2, monthly_orders = $3, month = $4, completed_deliveries = $5,
		    streak = $6, updated_at = $7, version = version + 1
		WHERE id = $1 AND version = $8`,
		string(d.ID), d.VehicleType, d.MonthlyOrders, d.Month, d.CompletedDeliveries,
		d.Streak, d.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update driver %s: %w", d.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}
