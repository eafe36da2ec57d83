package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSaleStore persists sale records in PostgreSQL. The wider sale document
// (items, totals breakdown) belongs to the sales subsystem; this store keeps
// the slice of it the ledger core needs.
type PgSaleStore struct {
	pool *pgxpool.Pool
}

// NewPgSaleStore constructs a sale store.
func NewPgSaleStore(pool *pgxpool.Pool) *PgSaleStore {
	return &PgSaleStore{pool: pool}
}

// CreateSale persists the primary sale record.
func (s *PgSaleStore) CreateSale(ctx context.Context, sale *Sale) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sales
			(id, business_id, client_id, daily_cash_snapshot_id, cash_register_id,
			 amount_total, is_paid_in_full, created_by, created_by_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sale.ID, sale.BusinessID, sale.ClientID, sale.DailyCashSnapshotID, sale.CashRegisterID,
		sale.AmountTotal, sale.IsPaidInFull,
		sale.Created.ActorID, sale.Created.ActorName, sale.Created.At)
	if err != nil {
		return fmt.Errorf("engine: insert sale: %w", err)
	}
	return nil
}
