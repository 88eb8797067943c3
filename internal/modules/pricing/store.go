// README: Hourly demand history store backed by PostgreSQL.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// History records and reads per-zone hourly order counts.
type History interface {
	RecordOrder(ctx context.Context, zoneID string, at time.Time) error
	Samples(ctx context.Context, zoneID string, weekday time.Weekday, since time.Time) ([]HourlySample, error)
}

type Store struct {
	db  *pgxpool.Pool
	loc *time.Location
}

// NewStore buckets orders by local day and hour in loc.
func NewStore(db *pgxpool.Pool, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc}
}

func (s *Store) RecordOrder(ctx context.Context, zoneID string, at time.Time) error {
	local := at.In(s.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	_, err := s.db.Exec(ctx, `
		INSERT INTO demand_hourly (zone_id, day, hour, orders)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (zone_id, day, hour) DO UPDATE SET orders = demand_hourly.orders + 1`,
		zoneID, day, local.Hour(),
	)
	if err != nil {
		return fmt.Errorf("record demand %s: %w", zoneID, err)
	}
	return nil
}

// Samples returns the zone's counts for days matching weekday since the
// given day, oldest first.
func (s *Store) Samples(ctx context.Context, zoneID string, weekday time.Weekday, since time.Time) ([]HourlySample, error) {
	rows, err := s.db.Query(ctx, `
		SELECT day, hour, orders
		FROM demand_hourly
		WHERE zone_id = $1 AND day >= $2 AND EXTRACT(DOW FROM day) = $3
		ORDER BY day, hour`,
		zoneID, since, int(weekday),
	)
	if err != nil {
		return nil, fmt.Errorf("query demand %s: %w", zoneID, err)
	}
	defer rows.Close()

	var out []HourlySample
	for rows.Next() {
		var sample HourlySample
		var hour int16
		var orders int32
		if err := rows.Scan(&sample.Day, &hour, &orders); err != nil {
			return nil, fmt.Errorf("scan demand: %w", err)
		}
		sample.Hour = int(hour)
		sample.Orders = int(orders)
		out = append(out, sample)
	}
	return out, rows.Err()
}
