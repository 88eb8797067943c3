// README: Delivery tracking store backed by PostgreSQL with optimistic versioning.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tawsil/internal/types"
)

// Repository persists trackings. Update must succeed only when the stored
// version equals expectedVersion.
type Repository interface {
	Create(ctx context.Context, t Tracking) error
	Get(ctx context.Context, id types.ID) (Tracking, error)
	Update(ctx context.Context, t Tracking, expectedVersion int) (bool, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, t Tracking) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO deliveries (
			id, order_id, driver_id, city, status,
			driver_lat, driver_lng,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			estimated_pickup_at, estimated_delivery_at,
			delivery_fee, last_update, version
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12, $13,
			$14, $15, 0
		)`,
		string(t.ID), string(t.OrderID), idPtr(t.DriverID), t.City, string(t.Status),
		latPtr(t.DriverLocation), lngPtr(t.DriverLocation),
		t.PickupLocation.Lat, t.PickupLocation.Lng, t.DropoffLocation.Lat, t.DropoffLocation.Lng,
		t.EstimatedPickupTime, t.EstimatedDeliveryTime,
		t.DeliveryFee, t.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("create delivery %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (Tracking, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, order_id, driver_id, city, status,
		       driver_lat, driver_lng,
		       pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		       estimated_pickup_at, actual_pickup_at, estimated_delivery_at, actual_delivery_at,
		       delivery_fee, last_update, version
		FROM deliveries
		WHERE id = $1`, string(id),
	)

	var t Tracking
	var driverID *string
	var driverLat, driverLng *float64
	err := row.Scan(
		&t.ID, &t.OrderID, &driverID, &t.City, &t.Status,
		&driverLat, &driverLng,
		&t.PickupLocation.Lat, &t.PickupLocation.Lng, &t.DropoffLocation.Lat, &t.DropoffLocation.Lng,
		&t.EstimatedPickupTime, &t.ActualPickupTime, &t.EstimatedDeliveryTime, &t.ActualDeliveryTime,
		&t.DeliveryFee, &t.LastUpdate, &t.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tracking{}, ErrNotFound
	}
	if err != nil {
		return Tracking{}, fmt.Errorf("get delivery %s: %w", id, err)
	}
	if driverID != nil {
		d := types.ID(*driverID)
		t.DriverID = &d
	}
	if driverLat != nil && driverLng != nil {
		t.DriverLocation = &types.Point{Lat: *driverLat, Lng: *driverLng}
	}

	history, err := s.history(ctx, id)
	if err != nil {
		return Tracking{}, err
	}
	t.StatusHistory = history
	return t, nil
}

func (s *Store) history(ctx context.Context, id types.ID) ([]StatusTransition, error) {
	rows, err := s.db.Query(ctx, `
		SELECT from_status, to_status, reason, created_at
		FROM delivery_status_events
		WHERE delivery_id = $1
		ORDER BY id`, string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", id, err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (StatusTransition, error) {
		var st StatusTransition
		err := r.Scan(&st.From, &st.To, &st.Reason, &st.Timestamp)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", id, err)
	}
	return out, nil
}

// Update writes t if the stored version still equals expectedVersion and
// appends any history entries beyond the ones already persisted. It reports
// false when another writer got there first.
func (s *Store) Update(ctx context.Context, t Tracking, expectedVersion int) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE deliveries
		SET driver_id = $1,
		    status = $2,
		    driver_lat = $3,
		    driver_lng = $4,
		    estimated_pickup_at = $5,
		    actual_pickup_at = $6,
		    estimated_delivery_at = $7,
		    actual_delivery_at = $8,
		    last_update = $9,
		    version = version + 1
		WHERE id = $10 AND version = $11`,
		idPtr(t.DriverID), string(t.Status),
		latPtr(t.DriverLocation), lngPtr(t.DriverLocation),
		t.EstimatedPickupTime, t.ActualPickupTime,
		t.EstimatedDeliveryTime, t.ActualDeliveryTime,
		t.LastUpdate,
		string(t.ID), expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update delivery %s: %w", t.ID, err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	var persisted int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_status_events WHERE delivery_id = $1`, string(t.ID)).Scan(&persisted); err != nil {
		return false, fmt.Errorf("count history %s: %w", t.ID, err)
	}
	if persisted < len(t.StatusHistory) {
		batch := &pgx.Batch{}
		for _, st := range t.StatusHistory[persisted:] {
			batch.Queue(`
				INSERT INTO delivery_status_events (delivery_id, from_status, to_status, reason, created_at)
				VALUES ($1, $2, $3, $4, $5)`,
				string(t.ID), string(st.From), string(st.To), st.Reason, st.Timestamp,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return false, fmt.Errorf("append history %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func latPtr(p *types.Point) *float64 {
	if p == nil {
		return nil
	}
	v := p.Lat
	return &v
}

func lngPtr(p *types.Point) *float64 {
	if p == nil {
		return nil
	}
	v := p.Lng
	return &v
}

var _ Repository = (*Store)(nil)
