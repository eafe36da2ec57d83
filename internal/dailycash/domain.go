package dailycash

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucero-pos/lucero/internal/catalog"
	"github.com/lucero-pos/lucero/internal/shared"
)

// SnapshotStatus enumerates the daily snapshot lifecycle.
type SnapshotStatus string

const (
	SnapshotStatusOpen   SnapshotStatus = "open"
	SnapshotStatusClosed SnapshotStatus = "closed"
)

// TransactionType enumerates the daily ledger entry kinds.
type TransactionType string

const (
	TypeSale        TransactionType = "sale"
	TypeDebtPayment TransactionType = "debt_payment"
	TypeExtract     TransactionType = "extract"
	TypeInject      TransactionType = "inject"
)

// BalanceLine records an amount against a funding account inside a snapshot's
// opening or closing set. Difference lines reuse the shape with
// counted-minus-expected deltas, which may be negative.
type BalanceLine struct {
	AccountID   uuid.UUID       `json:"accountId"`
	AccountName string          `json:"accountName"`
	AccountCode string          `json:"accountCode"`
	Amount      decimal.Decimal `json:"amount"`
}

// Snapshot is one register's open-to-close cash period.
type Snapshot struct {
	ID              uuid.UUID          `json:"id"`
	BusinessID      uuid.UUID          `json:"businessId"`
	CashRegisterID  uuid.UUID          `json:"cashRegisterId"`
	Status          SnapshotStatus     `json:"status"`
	OpeningBalances []BalanceLine      `json:"openingBalances"`
	ClosingBalances []BalanceLine      `json:"closingBalances,omitempty"`
	Differences     []BalanceLine      `json:"differences,omitempty"`
	Opened          shared.AuditStamp  `json:"opened"`
	Closed          *shared.AuditStamp `json:"closed,omitempty"`
}

// DeletePolicy declares snapshots as soft-delete only.
func (Snapshot) DeletePolicy() shared.DeletePolicy { return shared.DeleteNever }

// CashOpening returns the snapshot's opening cash amount.
func (s *Snapshot) CashOpening() decimal.Decimal {
	for _, line := range s.OpeningBalances {
		if line.AccountCode == catalog.CashAccountCode {
			return line.Amount
		}
	}
	return decimal.Zero
}

// Transaction is an immutable entry in a snapshot's ledger. Corrections are
// new offsetting entries, never updates.
type Transaction struct {
	ID                  uuid.UUID         `json:"id"`
	BusinessID          uuid.UUID         `json:"businessId"`
	DailyCashSnapshotID uuid.UUID         `json:"dailyCashSnapshotId"`
	CashRegisterID      uuid.UUID         `json:"cashRegisterId"`
	Type                TransactionType   `json:"type"`
	Amount              decimal.Decimal   `json:"amount"`
	SaleID              *uuid.UUID        `json:"saleId,omitempty"`
	DebtID              *uuid.UUID        `json:"debtId,omitempty"`
	WalletID            *uuid.UUID        `json:"walletId,omitempty"`
	Created             shared.AuditStamp `json:"created"`
}

// DeletePolicy declares transactions as append-only.
func (Transaction) DeletePolicy() shared.DeletePolicy { return shared.DeleteNever }

var (
	// ErrSnapshotAlreadyOpen indicates the register already has an open snapshot.
	ErrSnapshotAlreadyOpen = fmt.Errorf("dailycash: %w: register already has an open snapshot", shared.ErrStateConflict)
	// ErrSnapshotClosed indicates a write against a closed snapshot.
	ErrSnapshotClosed = fmt.Errorf("dailycash: %w: snapshot is closed", shared.ErrStateConflict)
	// ErrRegisterInactive indicates the target register is deactivated.
	ErrRegisterInactive = fmt.Errorf("dailycash: %w: register is inactive", shared.ErrStateConflict)
)

// ValidateBalanceLines checks a balance line set: non-empty, unique accounts,
// and (for opening/closing sets) non-negative amounts including the cash
// account.
func ValidateBalanceLines(field string, lines []BalanceLine, allowNegative bool) error {
	fields := shared.FieldErrors{}
	if len(lines) == 0 {
		fields.Add(field, "must not be empty")
		return fields.AsError()
	}
	seen := make(map[uuid.UUID]struct{}, len(lines))
	hasCash := false
	for i, line := range lines {
		if line.AccountID == uuid.Nil {
			fields.Add(fmt.Sprintf("%s[%d].accountId", field, i), "is required")
		}
		if line.AccountName == "" {
			fields.Add(fmt.Sprintf("%s[%d].accountName", field, i), "is required")
		}
		if !allowNegative && line.Amount.IsNegative() {
			fields.Add(fmt.Sprintf("%s[%d].amount", field, i), "must not be negative")
		}
		if _, dup := seen[line.AccountID]; dup {
			fields.Add(fmt.Sprintf("%s[%d].accountId", field, i), "is duplicated")
		}
		seen[line.AccountID] = struct{}{}
		if line.AccountCode == catalog.CashAccountCode {
			hasCash = true
		}
	}
	if !allowNegative && !hasCash {
		fields.Add(field, fmt.Sprintf("must include the %s account", catalog.CashAccountCode))
	}
	return fields.AsError()
}

// OpenInput carries the parameters for opening a snapshot. When
// OpeningBalances is empty, the cash-only carry-forward from the last closed
// snapshot of the same register is used instead.
type OpenInput struct {
	CashRegisterID  uuid.UUID     `json:"cashRegisterId"`
	OpeningBalances []BalanceLine `json:"openingBalances,omitempty"`
}

// CloseInput carries the caller-counted closing balances. Differences record
// counted-minus-expected deltas for audit; nothing is corrected automatically.
type CloseInput struct {
	SnapshotID      uuid.UUID     `json:"snapshotId"`
	ClosingBalances []BalanceLine `json:"closingBalances"`
	Differences     []BalanceLine `json:"differences,omitempty"`
}

// RecordInput carries the parameters for a ledger entry.
type RecordInput struct {
	SnapshotID uuid.UUID       `json:"snapshotId"`
	Type       TransactionType `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	SaleID     *uuid.UUID      `json:"saleId,omitempty"`
	DebtID     *uuid.UUID      `json:"debtId,omitempty"`
	WalletID   *uuid.UUID      `json:"walletId,omitempty"`
}

// Validate enforces the type-to-reference consistency matrix and amount rules.
func (in RecordInput) Validate() error {
	fields := shared.FieldErrors{}
	if in.SnapshotID == uuid.Nil {
		fields.Add("dailyCashSnapshotId", "is required")
	}
	if !in.Amount.IsPositive() {
		fields.Add("amount", "must be greater than zero")
	}
	switch in.Type {
	case TypeSale:
		if in.SaleID == nil {
			fields.Add("saleId", "is required for sale transactions")
		}
		if in.DebtID != nil {
			fields.Add("debtId", "must not be set for sale transactions")
		}
		if in.WalletID != nil {
			fields.Add("walletId", "must not be set for sale transactions")
		}
	case TypeDebtPayment:
		if in.DebtID == nil {
			fields.Add("debtId", "is required for debt_payment transactions")
		}
		if in.SaleID != nil {
			fields.Add("saleId", "must not be set for debt_payment transactions")
		}
	case TypeExtract, TypeInject:
		if in.WalletID == nil {
			fields.Add("walletId", fmt.Sprintf("is required for %s transactions", in.Type))
		}
		if in.SaleID != nil {
			fields.Add("saleId", fmt.Sprintf("must not be set for %s transactions", in.Type))
		}
		if in.DebtID != nil {
			fields.Add("debtId", fmt.Sprintf("must not be set for %s transactions", in.Type))
		}
	default:
		fields.Add("type", "must be one of sale, debt_payment, extract, inject")
	}
	return fields.AsError()
}
