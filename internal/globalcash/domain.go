package globalcash

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucero-pos/lucero/internal/shared"
)

// PeriodStatus enumerates the weekly period lifecycle.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "open"
	PeriodStatusClosed PeriodStatus = "closed"
)

// WalletType enumerates wallet entry directions.
type WalletType string

const (
	WalletIncome  WalletType = "Income"
	WalletOutcome WalletType = "Outcome"
)

// WalletStatus enumerates wallet entry states. The only allowed transition is
// paid to cancelled, one way.
type WalletStatus string

const (
	WalletStatusPaid      WalletStatus = "paid"
	WalletStatusCancelled WalletStatus = "cancelled"
)

// BalanceLine records an amount against a funding account inside a period's
// opening or closing set. Unlike the daily tier, the weekly ledger itemizes
// every funding account, not only cash.
type BalanceLine struct {
	AccountID   uuid.UUID       `json:"accountId"`
	AccountName string          `json:"accountName"`
	AccountCode string          `json:"accountCode"`
	Amount      decimal.Decimal `json:"amount"`
}

// Period is the business-wide weekly aggregate ledger. WeekStart is always a
// Monday at 00:00 and the period covers [WeekStart, WeekStart+7d).
type Period struct {
	ID              uuid.UUID          `json:"id"`
	BusinessID      uuid.UUID          `json:"businessId"`
	WeekStart       time.Time          `json:"weekStart"`
	Status          PeriodStatus       `json:"status"`
	OpeningBalances []BalanceLine      `json:"openingBalances"`
	ClosingBalances []BalanceLine      `json:"closingBalances,omitempty"`
	Differences     []BalanceLine      `json:"differences,omitempty"`
	Opened          shared.AuditStamp  `json:"opened"`
	Closed          *shared.AuditStamp `json:"closed,omitempty"`
}

func (Period) DeletePolicy() shared.DeletePolicy { return shared.DeleteNever }

// Covers reports whether t falls inside the period's week.
func (p *Period) Covers(t time.Time) bool {
	return !t.Before(p.WeekStart) && t.Before(p.WeekStart.AddDate(0, 0, 7))
}

// WalletTransaction is an entry in a period's ledger. Immutable except for the
// one-way paid to cancelled transition; cancelled entries are excluded from
// every balance computation.
type WalletTransaction struct {
	ID                uuid.UUID          `json:"id"`
	BusinessID        uuid.UUID          `json:"businessId"`
	GlobalCashID      uuid.UUID          `json:"globalCashId"`
	Type              WalletType         `json:"type"`
	Status            WalletStatus       `json:"status"`
	Amount            decimal.Decimal    `json:"amount"`
	AccountTypeID     uuid.UUID          `json:"accountTypeId"`
	AccountTypeName   string             `json:"accountTypeName"`
	PaymentMethodID   uuid.UUID          `json:"paymentMethodId"`
	PaymentMethodName string             `json:"paymentMethodName"`
	SaleID            *uuid.UUID         `json:"saleId,omitempty"`
	DebtID            *uuid.UUID         `json:"debtId,omitempty"`
	SettlementID      *uuid.UUID         `json:"settlementId,omitempty"`
	PurchaseInvoiceID *uuid.UUID         `json:"purchaseInvoiceId,omitempty"`
	SupplierID        *uuid.UUID         `json:"supplierId,omitempty"`
	Created           shared.AuditStamp  `json:"created"`
	Cancelled         *shared.AuditStamp `json:"cancelled,omitempty"`
}

func (WalletTransaction) DeletePolicy() shared.DeletePolicy { return shared.DeleteNever }

var (
	// ErrPeriodAlreadyOpen indicates the business already has an open period.
	ErrPeriodAlreadyOpen = fmt.Errorf("globalcash: %w: business already has an open period", shared.ErrStateConflict)
	// ErrPeriodClosed indicates a write against a closed period.
	ErrPeriodClosed = fmt.Errorf("globalcash: %w: period is closed", shared.ErrStateConflict)
	// ErrWalletCancelled indicates a transition on an already cancelled entry.
	ErrWalletCancelled = fmt.Errorf("globalcash: %w: wallet transaction is cancelled", shared.ErrStateConflict)
)

// WeekStartFor returns the Monday 00:00 that starts t's week, in t's location.
func WeekStartFor(t time.Time) time.Time {
	days := int(t.Weekday()) - int(time.Monday)
	if days < 0 {
		days += 7
	}
	day := t.AddDate(0, 0, -days)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
}

// ValidateBalanceLines checks a period balance set: non-empty, unique
// accounts, and non-negative amounts unless the set records differences.
func ValidateBalanceLines(field string, lines []BalanceLine, allowNegative bool) error {
	fields := shared.FieldErrors{}
	if len(lines) == 0 {
		fields.Add(field, "must not be empty")
		return fields.AsError()
	}
	seen := make(map[uuid.UUID]struct{}, len(lines))
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
	}
	return fields.AsError()
}

// OpenInput carries the parameters for opening a period. When OpeningBalances
// is empty, the previous period's closing balances are carried forward, or a
// zero-initialized active-account list when no previous period exists.
type OpenInput struct {
	OpeningBalances []BalanceLine `json:"openingBalances,omitempty"`
}

// CloseInput carries caller-counted closing balances for a manual close.
// Differences against the computed expectation are derived, not supplied.
type CloseInput struct {
	PeriodID        uuid.UUID     `json:"periodId"`
	ClosingBalances []BalanceLine `json:"closingBalances"`
}

// RecordWalletInput carries the parameters for a wallet entry.
type RecordWalletInput struct {
	GlobalCashID      uuid.UUID       `json:"globalCashId"`
	Type              WalletType      `json:"type"`
	Amount            decimal.Decimal `json:"amount"`
	AccountTypeID     uuid.UUID       `json:"accountTypeId"`
	PaymentMethodID   uuid.UUID       `json:"paymentMethodId"`
	SaleID            *uuid.UUID      `json:"saleId,omitempty"`
	DebtID            *uuid.UUID      `json:"debtId,omitempty"`
	SettlementID      *uuid.UUID      `json:"settlementId,omitempty"`
	PurchaseInvoiceID *uuid.UUID      `json:"purchaseInvoiceId,omitempty"`
	SupplierID        *uuid.UUID      `json:"supplierId,omitempty"`
}

// Validate enforces amount rules and the one-business-reference matrix:
// Income references a sale or a debt, Outcome a purchase invoice or a
// supplier, and exactly one reference must be set either way.
func (in RecordWalletInput) Validate() error {
	fields := shared.FieldErrors{}
	if in.GlobalCashID == uuid.Nil {
		fields.Add("globalCashId", "is required")
	}
	if !in.Amount.IsPositive() {
		fields.Add("amount", "must be greater than zero")
	}
	if in.AccountTypeID == uuid.Nil {
		fields.Add("accountTypeId", "is required")
	}
	if in.PaymentMethodID == uuid.Nil {
		fields.Add("paymentMethodId", "is required")
	}

	refs := 0
	for _, ref := range []*uuid.UUID{in.SaleID, in.DebtID, in.SettlementID, in.PurchaseInvoiceID, in.SupplierID} {
		if ref != nil {
			refs++
		}
	}
	if refs != 1 {
		fields.Add("references", "exactly one of saleId, debtId, settlementId, purchaseInvoiceId, supplierId must be set")
	}

	switch in.Type {
	case WalletIncome:
		if refs == 1 && in.SaleID == nil && in.DebtID == nil && in.SettlementID == nil {
			fields.Add("references", "Income must reference a sale, debt or settlement")
		}
	case WalletOutcome:
		if refs == 1 && in.PurchaseInvoiceID == nil && in.SupplierID == nil {
			fields.Add("references", "Outcome must reference a purchase invoice or supplier")
		}
	default:
		fields.Add("type", "must be Income or Outcome")
	}
	return fields.AsError()
}
