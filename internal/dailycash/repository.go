package dailycash

import (
	"context"
	"encoding/json"
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

// Repository provides PostgreSQL backed persistence for daily cash.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const snapshotColumns = `id, business_id, cash_register_id, status,
	opening_balances, closing_balances, differences,
	opened_by, opened_by_name, opened_at,
	closed_by, closed_by_name, closed_at`

// InsertSnapshot persists a new open snapshot. The partial unique index on
// (business_id, cash_register_id) WHERE status='open' makes the open-check
// and the write a single atomic step: of two concurrent opens, exactly one
// succeeds.
func (r *Repository) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	opening, err := json.Marshal(snap.OpeningBalances)
	if err != nil {
		return fmt.Errorf("dailycash: marshal opening balances: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO daily_cash_snapshots
			(id, business_id, cash_register_id, status, opening_balances, opened_by, opened_by_name, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		snap.ID, snap.BusinessID, snap.CashRegisterID, snap.Status, opening,
		snap.Opened.ActorID, snap.Opened.ActorName, snap.Opened.At)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSnapshotAlreadyOpen
		}
		return fmt.Errorf("dailycash: insert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot loads a snapshot scoped to the business.
func (r *Repository) GetSnapshot(ctx context.Context, businessID, id uuid.UUID) (*Snapshot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM daily_cash_snapshots WHERE business_id = $1 AND id = $2`,
		businessID, id)
	return scanSnapshot(row)
}

// OpenSnapshotForRegister returns the register's currently open snapshot.
func (r *Repository) OpenSnapshotForRegister(ctx context.Context, businessID, registerID uuid.UUID) (*Snapshot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM daily_cash_snapshots
		 WHERE business_id = $1 AND cash_register_id = $2 AND status = 'open'`,
		businessID, registerID)
	return scanSnapshot(row)
}

// LastClosedSnapshot returns the most recently closed snapshot for a register.
func (r *Repository) LastClosedSnapshot(ctx context.Context, businessID, registerID uuid.UUID) (*Snapshot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM daily_cash_snapshots
		 WHERE business_id = $1 AND cash_register_id = $2 AND status = 'closed'
		 ORDER BY closed_at DESC
		 LIMIT 1`,
		businessID, registerID)
	return scanSnapshot(row)
}

// RegisterActive reports whether the register exists and is active.
func (r *Repository) RegisterActive(ctx context.Context, businessID, registerID uuid.UUID) (bool, error) {
	var active bool
	err := r.pool.QueryRow(ctx,
		`SELECT is_active FROM cash_registers WHERE business_id = $1 AND id = $2`,
		businessID, registerID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, shared.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return active, nil
}

// CloseSnapshot transitions an open snapshot to closed. The row lock keeps
// close serialized against concurrent transaction inserts.
func (r *Repository) CloseSnapshot(ctx context.Context, businessID, id uuid.UUID, closing, differences []BalanceLine, stamp shared.AuditStamp) (*Snapshot, error) {
	closingJSON, err := json.Marshal(closing)
	if err != nil {
		return nil, fmt.Errorf("dailycash: marshal closing balances: %w", err)
	}
	diffJSON, err := json.Marshal(differences)
	if err != nil {
		return nil, fmt.Errorf("dailycash: marshal differences: %w", err)
	}

	var out *Snapshot
	err = r.withTx(ctx, func(tx pgx.Tx) error {
		snap, err := lockSnapshot(ctx, tx, businessID, id)
		if err != nil {
			return err
		}
		if snap.Status != SnapshotStatusOpen {
			return ErrSnapshotClosed
		}
		_, err = tx.Exec(ctx, `
			UPDATE daily_cash_snapshots
			SET status = 'closed',
			    closing_balances = $3, differences = $4,
			    closed_by = $5, closed_by_name = $6, closed_at = $7
			WHERE business_id = $1 AND id = $2`,
			businessID, id, closingJSON, diffJSON, stamp.ActorID, stamp.ActorName, stamp.At)
		if err != nil {
			return err
		}
		snap.Status = SnapshotStatusClosed
		snap.ClosingBalances = closing
		snap.Differences = differences
		snap.Closed = &stamp
		out = snap
		return nil
	})
	return out, err
}

// InsertTransaction appends a ledger entry. The snapshot row is locked so the
// open-status check and the insert observe the same state.
func (r *Repository) InsertTransaction(ctx context.Context, entry *Transaction) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		snap, err := lockSnapshot(ctx, tx, entry.BusinessID, entry.DailyCashSnapshotID)
		if err != nil {
			return err
		}
		if snap.Status != SnapshotStatusOpen {
			return ErrSnapshotClosed
		}
		entry.CashRegisterID = snap.CashRegisterID
		_, err = tx.Exec(ctx, `
			INSERT INTO daily_cash_transactions
				(id, business_id, daily_cash_snapshot_id, cash_register_id, type, amount,
				 sale_id, debt_id, wallet_id, created_by, created_by_name, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			entry.ID, entry.BusinessID, entry.DailyCashSnapshotID, entry.CashRegisterID,
			entry.Type, entry.Amount, entry.SaleID, entry.DebtID, entry.WalletID,
			entry.Created.ActorID, entry.Created.ActorName, entry.Created.At)
		return err
	})
}

// ListTransactions returns a snapshot's entries in creation order.
func (r *Repository) ListTransactions(ctx context.Context, businessID, snapshotID uuid.UUID) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, daily_cash_snapshot_id, cash_register_id, type, amount,
		       sale_id, debt_id, wallet_id, created_by, created_by_name, created_at
		FROM daily_cash_transactions
		WHERE business_id = $1 AND daily_cash_snapshot_id = $2
		ORDER BY created_at, id`,
		businessID, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("dailycash: list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var saleID, debtID, walletID pgtype.UUID
		err := rows.Scan(
			&t.ID, &t.BusinessID, &t.DailyCashSnapshotID, &t.CashRegisterID, &t.Type, &t.Amount,
			&saleID, &debtID, &walletID,
			&t.Created.ActorID, &t.Created.ActorName, &t.Created.At,
		)
		if err != nil {
			return nil, err
		}
		t.SaleID = uuidPointer(saleID)
		t.DebtID = uuidPointer(debtID)
		t.WalletID = uuidPointer(walletID)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func lockSnapshot(ctx context.Context, tx pgx.Tx, businessID, id uuid.UUID) (*Snapshot, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM daily_cash_snapshots WHERE business_id = $1 AND id = $2 FOR UPDATE`,
		businessID, id)
	return scanSnapshot(row)
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var snap Snapshot
	var opening, closing, differences []byte
	var closedBy pgtype.UUID
	var closedByName pgtype.Text
	var closedAt pgtype.Timestamptz

	err := row.Scan(
		&snap.ID, &snap.BusinessID, &snap.CashRegisterID, &snap.Status,
		&opening, &closing, &differences,
		&snap.Opened.ActorID, &snap.Opened.ActorName, &snap.Opened.At,
		&closedBy, &closedByName, &closedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(opening) > 0 {
		if err := json.Unmarshal(opening, &snap.OpeningBalances); err != nil {
			return nil, fmt.Errorf("dailycash: unmarshal opening balances: %w", err)
		}
	}
	if len(closing) > 0 {
		if err := json.Unmarshal(closing, &snap.ClosingBalances); err != nil {
			return nil, fmt.Errorf("dailycash: unmarshal closing balances: %w", err)
		}
	}
	if len(differences) > 0 {
		if err := json.Unmarshal(differences, &snap.Differences); err != nil {
			return nil, fmt.Errorf("dailycash: unmarshal differences: %w", err)
		}
	}
	if closedAt.Valid {
		snap.Closed = &shared.AuditStamp{
			ActorID:   uuid.UUID(closedBy.Bytes),
			ActorName: closedByName.String,
			At:        closedAt.Time,
		}
	}
	return &snap, nil
}

func uuidPointer(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}
