package registers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucero-pos/lucero/internal/platform/db"
	"github.com/lucero-pos/lucero/internal/shared"
)

// Repository provides PostgreSQL backed persistence for cash registers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const registerColumns = `id, business_id, name, is_active,
	created_by, created_by_name, created_at,
	updated_by, updated_by_name, updated_at,
	deactivated_by, deactivated_by_name, deactivated_at, deactivation_reason`

// Insert persists a new register. The unique index on (business_id, name)
// resolves concurrent duplicate creates; the loser sees ErrDuplicateName.
func (r *Repository) Insert(ctx context.Context, reg *CashRegister) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cash_registers (id, business_id, name, is_active, created_by, created_by_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reg.ID, reg.BusinessID, reg.Name, reg.IsActive,
		reg.Created.ActorID, reg.Created.ActorName, reg.Created.At)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateName
		}
		return fmt.Errorf("registers: insert: %w", err)
	}
	return nil
}

// Get loads a register scoped to the business.
func (r *Repository) Get(ctx context.Context, businessID, id uuid.UUID) (*CashRegister, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+registerColumns+` FROM cash_registers WHERE business_id = $1 AND id = $2`,
		businessID, id)
	return scanRegister(row)
}

// List returns the business's registers, optionally including inactive ones.
func (r *Repository) List(ctx context.Context, businessID uuid.UUID, includeInactive bool) ([]CashRegister, error) {
	query := `SELECT ` + registerColumns + ` FROM cash_registers WHERE business_id = $1`
	if !includeInactive {
		query += ` AND is_active`
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("registers: list: %w", err)
	}
	defer rows.Close()

	var out []CashRegister
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

// Deactivate marks the register inactive. The last-active guard runs under
// row locks inside the same transaction as the write so two concurrent
// deactivations cannot both succeed.
func (r *Repository) Deactivate(ctx context.Context, businessID, id uuid.UUID, stamp shared.AuditStamp, reason string) (*CashRegister, error) {
	var out *CashRegister
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		reg, err := lockRegister(ctx, tx, businessID, id)
		if err != nil {
			return err
		}
		if !reg.IsActive {
			return ErrAlreadyInactive
		}
		var others int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM (
				SELECT id FROM cash_registers
				WHERE business_id = $1 AND is_active AND id <> $2
				FOR UPDATE
			) held`, businessID, id).Scan(&others)
		if err != nil {
			return err
		}
		if others == 0 {
			return ErrLastActiveRegister
		}
		_, err = tx.Exec(ctx, `
			UPDATE cash_registers
			SET is_active = FALSE,
			    deactivated_by = $3, deactivated_by_name = $4, deactivated_at = $5,
			    deactivation_reason = $6,
			    updated_by = $3, updated_by_name = $4, updated_at = $5
			WHERE business_id = $1 AND id = $2`,
			businessID, id, stamp.ActorID, stamp.ActorName, stamp.At, reason)
		if err != nil {
			return err
		}
		reg.IsActive = false
		reg.Deactivated = &stamp
		reg.DeactivationReason = reason
		reg.Updated = &stamp
		out = reg
		return nil
	})
	return out, err
}

// Reactivate marks the register active again. Blocked while the register
// still has an open snapshot.
func (r *Repository) Reactivate(ctx context.Context, businessID, id uuid.UUID, stamp shared.AuditStamp) (*CashRegister, error) {
	var out *CashRegister
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		reg, err := lockRegister(ctx, tx, businessID, id)
		if err != nil {
			return err
		}
		if reg.IsActive {
			return ErrAlreadyActive
		}
		var open bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM daily_cash_snapshots
				WHERE business_id = $1 AND cash_register_id = $2 AND status = 'open'
			)`, businessID, id).Scan(&open)
		if err != nil {
			return err
		}
		if open {
			return ErrOpenSnapshotExists
		}
		_, err = tx.Exec(ctx, `
			UPDATE cash_registers
			SET is_active = TRUE,
			    updated_by = $3, updated_by_name = $4, updated_at = $5
			WHERE business_id = $1 AND id = $2`,
			businessID, id, stamp.ActorID, stamp.ActorName, stamp.At)
		if err != nil {
			return err
		}
		reg.IsActive = true
		reg.Updated = &stamp
		out = reg
		return nil
	})
	return out, err
}

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func lockRegister(ctx context.Context, tx pgx.Tx, businessID, id uuid.UUID) (*CashRegister, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+registerColumns+` FROM cash_registers WHERE business_id = $1 AND id = $2 FOR UPDATE`,
		businessID, id)
	return scanRegister(row)
}

func scanRegister(row pgx.Row) (*CashRegister, error) {
	var reg CashRegister
	var updatedBy, deactivatedBy pgtype.UUID
	var updatedByName, deactivatedByName, reason pgtype.Text
	var updatedAt, deactivatedAt pgtype.Timestamptz

	err := row.Scan(
		&reg.ID, &reg.BusinessID, &reg.Name, &reg.IsActive,
		&reg.Created.ActorID, &reg.Created.ActorName, &reg.Created.At,
		&updatedBy, &updatedByName, &updatedAt,
		&deactivatedBy, &deactivatedByName, &deactivatedAt, &reason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		reg.Updated = &shared.AuditStamp{
			ActorID:   uuid.UUID(updatedBy.Bytes),
			ActorName: updatedByName.String,
			At:        updatedAt.Time,
		}
	}
	if deactivatedAt.Valid {
		reg.Deactivated = &shared.AuditStamp{
			ActorID:   uuid.UUID(deactivatedBy.Bytes),
			ActorName: deactivatedByName.String,
			At:        deactivatedAt.Time,
		}
	}
	reg.DeactivationReason = reason.String
	return &reg, nil
}
