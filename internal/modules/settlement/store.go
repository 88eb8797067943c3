// README: Append-only ledger and payout store backed by PostgreSQL.
package settlement

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tawsil/internal/types"
)

// Ledger appends entries and payouts. There is no update or delete.
type Ledger interface {
	Append(ctx context.Context, entries []LedgerEntry) error
	ByReference(ctx context.Context, ref types.ID) ([]LedgerEntry, error)
	SavePayouts(ctx context.Context, payouts []Payout) error
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Append writes all entries in one transaction.
func (s *Store) Append(ctx context.Context, entries []LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
				INSERT INTO ledger_entries (
					id, type, amount, currency, entity_id, entity_type,
					description, reference_id, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				string(e.ID), string(e.Type), e.Amount, e.Currency, string(e.EntityID), string(e.EntityType),
				e.Description, string(e.ReferenceID), e.Timestamp,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("append ledger entries: %w", err)
		}
		return nil
	})
}

func (s *Store) ByReference(ctx context.Context, ref types.ID) ([]LedgerEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, type, amount, currency, entity_id, entity_type, description, reference_id, created_at
		FROM ledger_entries
		WHERE reference_id = $1
		ORDER BY created_at, id`, string(ref),
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger %s: %w", ref, err)
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.Amount, &e.Currency, &e.EntityID, &e.EntityType,
			&e.Description, &e.ReferenceID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SavePayouts(ctx context.Context, payouts []Payout) error {
	if len(payouts) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range payouts {
			orderIDs := make([]string, len(p.OrderIDs))
			for i, id := range p.OrderIDs {
				orderIDs[i] = string(id)
			}
			batch.Queue(`
				INSERT INTO payouts (id, entity_id, entity_type, amount, currency, order_ids, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				string(p.ID), string(p.EntityID), string(p.EntityType), p.Amount, p.Currency, orderIDs, p.CreatedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save payouts: %w", err)
		}
		return nil
	})
}
