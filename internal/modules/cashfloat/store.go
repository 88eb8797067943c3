// README: Cash float store backed by PostgreSQL with optimistic versioning.
package cashfloat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tawsil/internal/types"
)

// Repository persists floats. Update must succeed only when the stored
// version equals expectedVersion.
type Repository interface {
	Create(ctx context.Context, f CashFloat) error
	Get(ctx context.Context, driverID types.ID) (CashFloat, error)
	Update(ctx context.Context, f CashFloat, expectedVersion int) (bool, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, f CashFloat) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO cash_floats (
			driver_id, current_balance, trust_limit, total_collected, total_remitted,
			pending_remittance, last_reconciliation, transaction_count, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)
		ON CONFLICT (driver_id) DO NOTHING`,
		string(f.DriverID), f.CurrentBalance, f.TrustLimit, f.TotalCollected, f.TotalRemitted,
		f.PendingRemittance, f.LastReconciliation, f.TransactionCount,
	)
	if err != nil {
		return fmt.Errorf("create cash float %s: %w", f.DriverID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Store) Get(ctx context.Context, driverID types.ID) (CashFloat, error) {
	var f CashFloat
	err := s.db.QueryRow(ctx, `
		SELECT driver_id, current_balance, trust_limit, total_collected, total_remitted,
		       pending_remittance, last_reconciliation, transaction_count, version
		FROM cash_floats
		WHERE driver_id = $1`, string(driverID),
	).Scan(
		&f.DriverID, &f.CurrentBalance, &f.TrustLimit, &f.TotalCollected, &f.TotalRemitted,
		&f.PendingRemittance, &f.LastReconciliation, &f.TransactionCount, &f.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return CashFloat{}, ErrNotFound
	}
	if err != nil {
		return CashFloat{}, fmt.Errorf("get cash float %s: %w", driverID, err)
	}
	return f, nil
}

func (s *Store) Update(ctx context.Context, f CashFloat, expectedVersion int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE cash_floats
		SET current_balance = $2, trust_limit = $3, total_collected = $4, total_remitted = $5,
		    pending_remittance = $6, last_reconciliation = $7, transaction_count = $8,
		    version = version + 1
		WHERE driver_id = $1 AND version = $9`,
		string(f.DriverID), f.CurrentBalance, f.TrustLimit, f.TotalCollected, f.TotalRemitted,
		f.PendingRemittance, f.LastReconciliation, f.TransactionCount, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update cash float %s: %w", f.DriverID, err)
	}
	return tag.RowsAffected() == 1, nil
}
