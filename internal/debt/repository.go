package debt

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucero-pos/lucero/internal/platform/db"
	"github.com/lucero-pos/lucero/internal/shared"
)

// Repository provides PostgreSQL backed persistence for debts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const debtColumns = `id, business_id, client_id, supplier_id, daily_cash_snapshot_id,
	origin_type, sale_id, purchase_invoice_id,
	original_amount, paid_amount, remaining_amount, status, paid_at, cancel_reason,
	created_by, created_by_name, created_at,
	updated_by, updated_by_name, updated_at`

// Insert persists a new debt.
func (r *Repository) Insert(ctx context.Context, d *Debt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO debts
			(id, business_id, client_id, supplier_id, daily_cash_snapshot_id,
			 origin_type, sale_id, purchase_invoice_id,
			 original_amount, paid_amount, remaining_amount, status,
			 created_by, created_by_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.BusinessID, d.ClientID, d.SupplierID, d.DailyCashSnapshotID,
		d.OriginType, d.SaleID, d.PurchaseInvoiceID,
		d.OriginalAmount, d.PaidAmount, d.RemainingAmount, d.Status,
		d.Created.ActorID, d.Created.ActorName, d.Created.At)
	if err != nil {
		return fmt.Errorf("debt: insert: %w", err)
	}
	return nil
}

// Get loads a debt scoped to the business.
func (r *Repository) Get(ctx context.Context, businessID, id uuid.UUID) (*Debt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE business_id = $1 AND id = $2`,
		businessID, id)
	return scanDebt(row)
}

// List returns debts filtered by status, newest first. An empty status
// returns everything.
func (r *Repository) List(ctx context.Context, businessID uuid.UUID, status Status) ([]Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE business_id = $1`
	args := []any{businessID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("debt: list: %w", err)
	}
	defer rows.Close()

	var out []Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Transition applies a guarded mutation under a row lock so concurrent
// payments against the same debt serialize.
func (r *Repository) Transition(ctx context.Context, businessID, id uuid.UUID, guard func(*Debt) error, mutate func(*Debt)) (*Debt, error) {
	var out *Debt
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+debtColumns+` FROM debts WHERE business_id = $1 AND id = $2 FOR UPDATE`,
			businessID, id)
		d, err := scanDebt(row)
		if err != nil {
			return err
		}
		if err := guard(d); err != nil {
			return err
		}
		mutate(d)
		var updatedBy, updatedByName, updatedAt any
		if d.Updated != nil {
			updatedBy, updatedByName, updatedAt = d.Updated.ActorID, d.Updated.ActorName, d.Updated.At
		}
		_, err = tx.Exec(ctx, `
			UPDATE debts
			SET paid_amount = $3, remaining_amount = $4, status = $5,
			    daily_cash_snapshot_id = $6, paid_at = $7, cancel_reason = $8,
			    updated_by = $9, updated_by_name = $10, updated_at = $11
			WHERE business_id = $1 AND id = $2`,
			businessID, id, d.PaidAmount, d.RemainingAmount, d.Status,
			d.DailyCashSnapshotID, d.PaidAt, d.CancelReason,
			updatedBy, updatedByName, updatedAt)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func scanDebt(row pgx.Row) (*Debt, error) {
	var d Debt
	var clientID, supplierID, snapshotID, saleID, invoiceID, updatedBy pgtype.UUID
	var paidAt, updatedAt pgtype.Timestamptz
	var cancelReason, updatedByName pgtype.Text

	err := row.Scan(
		&d.ID, &d.BusinessID, &clientID, &supplierID, &snapshotID,
		&d.OriginType, &saleID, &invoiceID,
		&d.OriginalAmount, &d.PaidAmount, &d.RemainingAmount, &d.Status, &paidAt, &cancelReason,
		&d.Created.ActorID, &d.Created.ActorName, &d.Created.At,
		&updatedBy, &updatedByName, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.ClientID = uuidPointer(clientID)
	d.SupplierID = uuidPointer(supplierID)
	d.DailyCashSnapshotID = uuidPointer(snapshotID)
	d.SaleID = uuidPointer(saleID)
	d.PurchaseInvoiceID = uuidPointer(invoiceID)
	if paidAt.Valid {
		t := paidAt.Time
		d.PaidAt = &t
	}
	d.CancelReason = cancelReason.String
	if updatedAt.Valid {
		d.Updated = &shared.AuditStamp{
			ActorID:   uuid.UUID(updatedBy.Bytes),
			ActorName: updatedByName.String,
			At:        updatedAt.Time,
		}
	}
	return &d, nil
}

func uuidPointer(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}
