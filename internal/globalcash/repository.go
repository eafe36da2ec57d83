package globalcash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucero-pos/lucero/internal/platform/db"
	"github.com/lucero-pos/lucero/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the weekly ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const periodColumns = `id, business_id, week_start, status,
	opening_balances, closing_balances, differences,
	opened_by, opened_by_name, opened_at,
	closed_by, closed_by_name, closed_at`

const walletColumns = `id, business_id, global_cash_id, type, status, amount,
	account_type_id, account_type_name, payment_method_id, payment_method_name,
	sale_id, debt_id, settlement_id, purchase_invoice_id, supplier_id,
	created_by, created_by_name, created_at,
	cancelled_by, cancelled_by_name, cancelled_at`

// InsertPeriod persists a new open period. The partial unique index on
// business_id WHERE status='open' makes the one-open-period rule atomic with
// the write.
func (r *Repository) InsertPeriod(ctx context.Context, period *Period) error {
	opening, err := json.Marshal(period.OpeningBalances)
	if err != nil {
		return fmt.Errorf("globalcash: marshal opening balances: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO global_cash_periods
			(id, business_id, week_start, status, opening_balances, opened_by, opened_by_name, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		period.ID, period.BusinessID, period.WeekStart, period.Status, opening,
		period.Opened.ActorID, period.Opened.ActorName, period.Opened.At)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrPeriodAlreadyOpen
		}
		return fmt.Errorf("globalcash: insert period: %w", err)
	}
	return nil
}

// GetPeriod loads a period scoped to the business.
func (r *Repository) GetPeriod(ctx context.Context, businessID, id uuid.UUID) (*Period, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM global_cash_periods WHERE business_id = $1 AND id = $2`,
		businessID, id)
	return scanPeriod(row)
}

// OpenPeriod returns the business's currently open period.
func (r *Repository) OpenPeriod(ctx context.Context, businessID uuid.UUID) (*Period, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM global_cash_periods WHERE business_id = $1 AND status = 'open'`,
		businessID)
	return scanPeriod(row)
}

// PeriodByWeek returns the period whose week starts at weekStart, regardless
// of status.
func (r *Repository) PeriodByWeek(ctx context.Context, businessID uuid.UUID, weekStart time.Time) (*Period, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM global_cash_periods WHERE business_id = $1 AND week_start = $2`,
		businessID, weekStart)
	return scanPeriod(row)
}

// LastClosedPeriod returns the most recently closed period.
func (r *Repository) LastClosedPeriod(ctx context.Context, businessID uuid.UUID) (*Period, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM global_cash_periods
		 WHERE business_id = $1 AND status = 'closed'
		 ORDER BY week_start DESC
		 LIMIT 1`,
		businessID)
	return scanPeriod(row)
}

// ClosePeriod transitions an open period to closed. The row lock keeps close
// serialized against concurrent wallet inserts.
func (r *Repository) ClosePeriod(ctx context.Context, businessID, id uuid.UUID, closing, differences []BalanceLine, stamp shared.AuditStamp) (*Period, error) {
	closingJSON, err := json.Marshal(closing)
	if err != nil {
		return nil, fmt.Errorf("globalcash: marshal closing balances: %w", err)
	}
	diffJSON, err := json.Marshal(differences)
	if err != nil {
		return nil, fmt.Errorf("globalcash: marshal differences: %w", err)
	}

	var out *Period
	err = r.withTx(ctx, func(tx pgx.Tx) error {
		period, err := lockPeriod(ctx, tx, businessID, id)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return ErrPeriodClosed
		}
		_, err = tx.Exec(ctx, `
			UPDATE global_cash_periods
			SET status = 'closed',
			    closing_balances = $3, differences = $4,
			    closed_by = $5, closed_by_name = $6, closed_at = $7
			WHERE business_id = $1 AND id = $2`,
			businessID, id, closingJSON, diffJSON, stamp.ActorID, stamp.ActorName, stamp.At)
		if err != nil {
			return err
		}
		period.Status = PeriodStatusClosed
		period.ClosingBalances = closing
		period.Differences = differences
		period.Closed = &stamp
		out = period
		return nil
	})
	return out, err
}

// InsertWallet appends a wallet entry. The period row is locked so the
// open-status check and the insert observe the same state.
func (r *Repository) InsertWallet(ctx context.Context, entry *WalletTransaction) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		period, err := lockPeriod(ctx, tx, entry.BusinessID, entry.GlobalCashID)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return ErrPeriodClosed
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO wallet_transactions
				(id, business_id, global_cash_id, type, status, amount,
				 account_type_id, account_type_name, payment_method_id, payment_method_name,
				 sale_id, debt_id, settlement_id, purchase_invoice_id, supplier_id,
				 created_by, created_by_name, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			entry.ID, entry.BusinessID, entry.GlobalCashID, entry.Type, entry.Status, entry.Amount,
			entry.AccountTypeID, entry.AccountTypeName, entry.PaymentMethodID, entry.PaymentMethodName,
			entry.SaleID, entry.DebtID, entry.SettlementID, entry.PurchaseInvoiceID, entry.SupplierID,
			entry.Created.ActorID, entry.Created.ActorName, entry.Created.At)
		return err
	})
}

// GetWallet loads a wallet entry scoped to the business.
func (r *Repository) GetWallet(ctx context.Context, businessID, id uuid.UUID) (*WalletTransaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallet_transactions WHERE business_id = $1 AND id = $2`,
		businessID, id)
	return scanWallet(row)
}

// CancelWallet applies the one-way paid to cancelled transition.
func (r *Repository) CancelWallet(ctx context.Context, businessID, id uuid.UUID, stamp shared.AuditStamp) (*WalletTransaction, error) {
	var out *WalletTransaction
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+walletColumns+` FROM wallet_transactions WHERE business_id = $1 AND id = $2 FOR UPDATE`,
			businessID, id)
		entry, err := scanWallet(row)
		if err != nil {
			return err
		}
		if entry.Status == WalletStatusCancelled {
			return ErrWalletCancelled
		}
		_, err = tx.Exec(ctx, `
			UPDATE wallet_transactions
			SET status = 'cancelled', cancelled_by = $3, cancelled_by_name = $4, cancelled_at = $5
			WHERE business_id = $1 AND id = $2`,
			businessID, id, stamp.ActorID, stamp.ActorName, stamp.At)
		if err != nil {
			return err
		}
		entry.Status = WalletStatusCancelled
		entry.Cancelled = &stamp
		out = entry
		return nil
	})
	return out, err
}

// ListWallet returns a period's entries in creation order.
func (r *Repository) ListWallet(ctx context.Context, businessID, periodID uuid.UUID) ([]WalletTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+walletColumns+` FROM wallet_transactions
		 WHERE business_id = $1 AND global_cash_id = $2
		 ORDER BY created_at, id`,
		businessID, periodID)
	if err != nil {
		return nil, fmt.Errorf("globalcash: list wallet transactions: %w", err)
	}
	defer rows.Close()

	var out []WalletTransaction
	for rows.Next() {
		entry, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func lockPeriod(ctx context.Context, tx pgx.Tx, businessID, id uuid.UUID) (*Period, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM global_cash_periods WHERE business_id = $1 AND id = $2 FOR UPDATE`,
		businessID, id)
	return scanPeriod(row)
}

func scanPeriod(row pgx.Row) (*Period, error) {
	var period Period
	var opening, closing, differences []byte
	var closedBy pgtype.UUID
	var closedByName pgtype.Text
	var closedAt pgtype.Timestamptz

	err := row.Scan(
		&period.ID, &period.BusinessID, &period.WeekStart, &period.Status,
		&opening, &closing, &differences,
		&period.Opened.ActorID, &period.Opened.ActorName, &period.Opened.At,
		&closedBy, &closedByName, &closedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(opening) > 0 {
		if err := json.Unmarshal(opening, &period.OpeningBalances); err != nil {
			return nil, fmt.Errorf("globalcash: unmarshal opening balances: %w", err)
		}
	}
	if len(closing) > 0 {
		if err := json.Unmarshal(closing, &period.ClosingBalances); err != nil {
			return nil, fmt.Errorf("globalcash: unmarshal closing balances: %w", err)
		}
	}
	if len(differences) > 0 {
		if err := json.Unmarshal(differences, &period.Differences); err != nil {
			return nil, fmt.Errorf("globalcash: unmarshal differences: %w", err)
		}
	}
	if closedAt.Valid {
		period.Closed = &shared.AuditStamp{
			ActorID:   uuid.UUID(closedBy.Bytes),
			ActorName: closedByName.String,
			At:        closedAt.Time,
		}
	}
	return &period, nil
}

func scanWallet(row pgx.Row) (*WalletTransaction, error) {
	var entry WalletTransaction
	var saleID, debtID, settlementID, invoiceID, supplierID, cancelledBy pgtype.UUID
	var cancelledByName pgtype.Text
	var cancelledAt pgtype.Timestamptz

	err := row.Scan(
		&entry.ID, &entry.BusinessID, &entry.GlobalCashID, &entry.Type, &entry.Status, &entry.Amount,
		&entry.AccountTypeID, &entry.AccountTypeName, &entry.PaymentMethodID, &entry.PaymentMethodName,
		&saleID, &debtID, &settlementID, &invoiceID, &supplierID,
		&entry.Created.ActorID, &entry.Created.ActorName, &entry.Created.At,
		&cancelledBy, &cancelledByName, &cancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	entry.SaleID = uuidPointer(saleID)
	entry.DebtID = uuidPointer(debtID)
	entry.SettlementID = uuidPointer(settlementID)
	entry.PurchaseInvoiceID = uuidPointer(invoiceID)
	entry.SupplierID = uuidPointer(supplierID)
	if cancelledAt.Valid {
		entry.Cancelled = &shared.AuditStamp{
			ActorID:   uuid.UUID(cancelledBy.Bytes),
			ActorName: cancelledByName.String,
			At:        cancelledAt.Time,
		}
	}
	return &entry, nil
}

func uuidPointer(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}
