package settlement

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

// Repository provides PostgreSQL backed persistence for settlements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const settlementColumns = `id, business_id, sale_id, daily_cash_snapshot_id, cash_register_id,
	payment_method_id, payment_method_name, status,
	amount_total, amount_fee, percentage_fee, paid_date, note, cancel_reason,
	created_by, created_by_name, created_at,
	updated_by, updated_by_name, updated_at`

// Insert persists a new pending settlement.
func (r *Repository) Insert(ctx context.Context, s *Settlement) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settlements
			(id, business_id, sale_id, daily_cash_snapshot_id, cash_register_id,
			 payment_method_id, payment_method_name, status,
			 amount_total, amount_fee, percentage_fee,
			 created_by, created_by_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.BusinessID, s.SaleID, s.DailyCashSnapshotID, s.CashRegisterID,
		s.PaymentMethodID, s.PaymentMethodName, s.Status,
		s.AmountTotal, s.AmountFee, s.PercentageFee,
		s.Created.ActorID, s.Created.ActorName, s.Created.At)
	if err != nil {
		return fmt.Errorf("settlement: insert: %w", err)
	}
	return nil
}

// Get loads a settlement scoped to the business.
func (r *Repository) Get(ctx context.Context, businessID, id uuid.UUID) (*Settlement, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE business_id = $1 AND id = $2`,
		businessID, id)
	return scanSettlement(row)
}

// List returns settlements filtered by status, newest first. An empty status
// returns everything.
func (r *Repository) List(ctx context.Context, businessID uuid.UUID, status Status) ([]Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE business_id = $1`
	args := []any{businessID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("settlement: list: %w", err)
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ListBySale returns a sale's settlements.
func (r *Repository) ListBySale(ctx context.Context, businessID, saleID uuid.UUID) ([]Settlement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+settlementColumns+` FROM settlements
		 WHERE business_id = $1 AND sale_id = $2
		 ORDER BY created_at, id`,
		businessID, saleID)
	if err != nil {
		return nil, fmt.Errorf("settlement: list by sale: %w", err)
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Transition applies a guarded status mutation. The row lock serializes
// concurrent transitions; guard inspects the current state and mutate edits
// the in-memory copy whose fields are then written back.
func (r *Repository) Transition(ctx context.Context, businessID, id uuid.UUID, guard func(*Settlement) error, mutate func(*Settlement)) (*Settlement, error) {
	var out *Settlement
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+settlementColumns+` FROM settlements WHERE business_id = $1 AND id = $2 FOR UPDATE`,
			businessID, id)
		s, err := scanSettlement(row)
		if err != nil {
			return err
		}
		if err := guard(s); err != nil {
			return err
		}
		mutate(s)
		var updatedBy any
		var updatedByName any
		var updatedAt any
		if s.Updated != nil {
			updatedBy, updatedByName, updatedAt = s.Updated.ActorID, s.Updated.ActorName, s.Updated.At
		}
		_, err = tx.Exec(ctx, `
			UPDATE settlements
			SET status = $3, paid_date = $4, note = $5, cancel_reason = $6,
			    updated_by = $7, updated_by_name = $8, updated_at = $9
			WHERE business_id = $1 AND id = $2`,
			businessID, id, s.Status, s.PaidDate, s.Note, s.CancelReason,
			updatedBy, updatedByName, updatedAt)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func scanSettlement(row pgx.Row) (*Settlement, error) {
	var s Settlement
	var paidDate pgtype.Timestamptz
	var note, cancelReason pgtype.Text
	var updatedBy pgtype.UUID
	var updatedByName pgtype.Text
	var updatedAt pgtype.Timestamptz

	err := row.Scan(
		&s.ID, &s.BusinessID, &s.SaleID, &s.DailyCashSnapshotID, &s.CashRegisterID,
		&s.PaymentMethodID, &s.PaymentMethodName, &s.Status,
		&s.AmountTotal, &s.AmountFee, &s.PercentageFee, &paidDate, &note, &cancelReason,
		&s.Created.ActorID, &s.Created.ActorName, &s.Created.At,
		&updatedBy, &updatedByName, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if paidDate.Valid {
		t := paidDate.Time
		s.PaidDate = &t
	}
	s.Note = note.String
	s.CancelReason = cancelReason.String
	if updatedAt.Valid {
		s.Updated = &shared.AuditStamp{
			ActorID:   uuid.UUID(updatedBy.Bytes),
			ActorName: updatedByName.String,
			At:        updatedAt.Time,
		}
	}
	return &s, nil
}
