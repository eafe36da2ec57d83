package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the ledger tables. Statements are idempotent so the bootstrap
// can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS cash_registers (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_by UUID NOT NULL,
		created_by_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_by UUID,
		updated_by_name TEXT,
		updated_at TIMESTAMPTZ,
		deactivated_by UUID,
		deactivated_by_name TEXT,
		deactivated_at TIMESTAMPTZ,
		deactivation_reason TEXT,
		UNIQUE (business_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS daily_cash_snapshots (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		cash_register_id UUID NOT NULL REFERENCES cash_registers(id),
		status TEXT NOT NULL,
		opening_balances JSONB NOT NULL,
		closing_balances JSONB,
		differences JSONB,
		opened_by UUID NOT NULL,
		opened_by_name TEXT NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		closed_by UUID,
		closed_by_name TEXT,
		closed_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_daily_snapshot_open
		ON daily_cash_snapshots (business_id, cash_register_id)
		WHERE status = 'open'`,
	`CREATE TABLE IF NOT EXISTS daily_cash_transactions (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		daily_cash_snapshot_id UUID NOT NULL REFERENCES daily_cash_snapshots(id),
		cash_register_id UUID NOT NULL,
		type TEXT NOT NULL,
		amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		sale_id UUID,
		debt_id UUID,
		wallet_id UUID,
		created_by UUID NOT NULL,
		created_by_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_daily_tx_snapshot
		ON daily_cash_transactions (daily_cash_snapshot_id)`,
	`CREATE TABLE IF NOT EXISTS global_cash_periods (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		status TEXT NOT NULL,
		week_start TIMESTAMPTZ NOT NULL,
		opening_balances JSONB NOT NULL,
		closing_balances JSONB,
		differences JSONB,
		opened_by UUID,
		opened_by_name TEXT NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		closed_by UUID,
		closed_by_name TEXT,
		closed_at TIMESTAMPTZ,
		UNIQUE (business_id, week_start)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_global_cash_open
		ON global_cash_periods (business_id)
		WHERE status = 'open'`,
	`CREATE TABLE IF NOT EXISTS wallet_transactions (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		global_cash_id UUID NOT NULL REFERENCES global_cash_periods(id),
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		account_type_id UUID,
		account_type_name TEXT,
		payment_method_id UUID,
		payment_method_name TEXT,
		sale_id UUID,
		debt_id UUID,
		settlement_id UUID,
		purchase_invoice_id UUID,
		supplier_id UUID,
		created_by UUID NOT NULL,
		created_by_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		cancelled_by UUID,
		cancelled_by_name TEXT,
		cancelled_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS ix_wallet_tx_period
		ON wallet_transactions (global_cash_id)`,
	`CREATE TABLE IF NOT EXISTS settlements (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		sale_id UUID NOT NULL,
		daily_cash_snapshot_id UUID NOT NULL,
		cash_register_id UUID NOT NULL,
		payment_method_id UUID NOT NULL,
		payment_method_name TEXT NOT NULL,
		status TEXT NOT NULL,
		amount_total NUMERIC(14,2) NOT NULL CHECK (amount_total > 0),
		amount_fee NUMERIC(14,2),
		percentage_fee NUMERIC(5,2),
		paid_date TIMESTAMPTZ,
		note TEXT,
		cancel_reason TEXT,
		created_by UUID NOT NULL,
		created_by_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_by UUID,
		updated_by_name TEXT,
		updated_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS debts (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		client_id UUID,
		supplier_id UUID,
		daily_cash_snapshot_id UUID,
		origin_type TEXT NOT NULL,
		sale_id UUID,
		purchase_invoice_id UUID,
		original_amount NUMERIC(14,2) NOT NULL CHECK (original_amount > 0),
		paid_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		remaining_amount NUMERIC(14,2) NOT NULL,
		status TEXT NOT NULL,
		paid_at TIMESTAMPTZ,
		cancel_reason TEXT,
		created_by UUID NOT NULL,
		created_by_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_by UUID,
		updated_by_name TEXT,
		updated_at TIMESTAMPTZ,
		CHECK ((client_id IS NULL) <> (supplier_id IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		client_id UUID,
		daily_cash_snapshot_id UUID NOT NULL,
		cash_register_id UUID NOT NULL,
		amount_total NUMERIC(14,2) NOT NULL CHECK (amount_total > 0),
		is_paid_in_full BOOLEAN NOT NULL,
		created_by UUID NOT NULL,
		created_by_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS funding_accounts (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		name TEXT NOT NULL,
		code TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (business_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS payment_methods (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		name TEXT NOT NULL,
		code TEXT NOT NULL,
		class TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (business_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		business_id UUID NOT NULL,
		actor_name TEXT NOT NULL,
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		meta JSONB,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
}

// ApplySchema creates any missing ledger tables.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("platform/db: apply schema: %w", err)
		}
	}
	return nil
}
