package debt

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucero-pos/lucero/internal/shared"
)

// OriginType records what produced a debt.
type OriginType string

const (
	OriginSale            OriginType = "sale"
	OriginPurchaseInvoice OriginType = "purchaseInvoice"
	OriginManual          OriginType = "manual"
)

// Status enumerates the debt lifecycle. Active may pay off or cancel, and a
// cancelled debt may be reactivated. Paid requires the remaining amount to be
// zero within the amount tolerance.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Debt is an outstanding balance owed by a client or owed to a supplier,
// never both. Customer debts carry the snapshot under which they were
// incurred; supplier debts must not.
type Debt struct {
	ID                  uuid.UUID          `json:"id"`
	BusinessID          uuid.UUID          `json:"businessId"`
	ClientID            *uuid.UUID         `json:"clientId,omitempty"`
	SupplierID          *uuid.UUID         `json:"supplierId,omitempty"`
	DailyCashSnapshotID *uuid.UUID         `json:"dailyCashSnapshotId,omitempty"`
	OriginType          OriginType         `json:"originType"`
	SaleID              *uuid.UUID         `json:"saleId,omitempty"`
	PurchaseInvoiceID   *uuid.UUID         `json:"purchaseInvoiceId,omitempty"`
	OriginalAmount      decimal.Decimal    `json:"originalAmount"`
	PaidAmount          decimal.Decimal    `json:"paidAmount"`
	RemainingAmount     decimal.Decimal    `json:"remainingAmount"`
	Status              Status             `json:"status"`
	PaidAt              *time.Time         `json:"paidAt,omitempty"`
	CancelReason        string             `json:"cancelReason,omitempty"`
	Created             shared.AuditStamp  `json:"created"`
	Updated             *shared.AuditStamp `json:"updated,omitempty"`
}

func (Debt) DeletePolicy() shared.DeletePolicy { return shared.DeleteNever }

// IsCustomer reports whether the debt is owed by a client.
func (d *Debt) IsCustomer() bool { return d.ClientID != nil }

var (
	// ErrNotActive indicates a payment or cancel on a non-active debt.
	ErrNotActive = fmt.Errorf("debt: %w: debt is not active", shared.ErrStateConflict)
	// ErrNotCancelled indicates a reactivate on a non-cancelled debt.
	ErrNotCancelled = fmt.Errorf("debt: %w: debt is not cancelled", shared.ErrStateConflict)
)

// CreateInput carries the parameters for a new debt. OriginType is set by the
// service entry point, not the caller.
type CreateInput struct {
	ClientID            *uuid.UUID      `json:"clientId,omitempty"`
	SupplierID          *uuid.UUID      `json:"supplierId,omitempty"`
	DailyCashSnapshotID *uuid.UUID      `json:"dailyCashSnapshotId,omitempty"`
	SaleID              *uuid.UUID      `json:"saleId,omitempty"`
	PurchaseInvoiceID   *uuid.UUID      `json:"purchaseInvoiceId,omitempty"`
	OriginalAmount      decimal.Decimal `json:"originalAmount"`
}

func (in CreateInput) validate(origin OriginType) error {
	fields := shared.FieldErrors{}
	if (in.ClientID == nil) == (in.SupplierID == nil) {
		fields.Add("clientId", "exactly one of clientId or supplierId must be set")
	}
	if in.SupplierID != nil && in.DailyCashSnapshotID != nil {
		fields.Add("dailyCashSnapshotId", "must not be set on supplier debts")
	}
	if !in.OriginalAmount.IsPositive() {
		fields.Add("originalAmount", "must be greater than zero")
	}
	switch origin {
	case OriginSale:
		if in.SaleID == nil {
			fields.Add("saleId", "is required for sale debts")
		}
		if in.ClientID == nil {
			fields.Add("clientId", "sale debts belong to a client")
		}
	case OriginPurchaseInvoice:
		if in.PurchaseInvoiceID == nil {
			fields.Add("purchaseInvoiceId", "is required for purchase invoice debts")
		}
		if in.SupplierID == nil {
			fields.Add("supplierId", "purchase invoice debts belong to a supplier")
		}
	case OriginManual:
		if in.SaleID != nil || in.PurchaseInvoiceID != nil {
			fields.Add("saleId", "manual debts carry no sale or invoice reference")
		}
	}
	return fields.AsError()
}

// PaymentInput carries the parameters for recording a payment against a debt.
// DailyCashSnapshotID identifies the register snapshot the cash entered
// through; it is required when a customer debt is paid in cash.
type PaymentInput struct {
	DebtID              uuid.UUID       `json:"debtId"`
	Amount              decimal.Decimal `json:"amount"`
	DailyCashSnapshotID *uuid.UUID      `json:"dailyCashSnapshotId,omitempty"`
}

// CancelInput carries the reason for a cancel transition.
type CancelInput struct {
	DebtID uuid.UUID `json:"debtId"`
	Reason string    `json:"reason"`
}
