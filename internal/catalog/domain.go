package catalog

import (
	"context"

	"github.com/google/uuid"
)

// MethodClass routes a payment line to its target ledger. Routing is driven
// by this attribute, never by method-name literals.
type MethodClass string

const (
	// ClassCash routes to the daily cash transaction ledger.
	ClassCash MethodClass = "cash"
	// ClassCardProvider routes to a pending settlement.
	ClassCardProvider MethodClass = "card_provider"
	// ClassOther routes straight to the wallet ledger.
	ClassOther MethodClass = "other"
)

// CashAccountCode identifies the physical-cash funding account every snapshot
// balance line set must include.
const CashAccountCode = "EFECTIVO"

// FundingAccount is a business bank/cash account balances are tracked against.
type FundingAccount struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"businessId"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	IsActive   bool      `json:"isActive"`
}

// PaymentMethod is a tender type offered at the point of sale.
type PaymentMethod struct {
	ID         uuid.UUID   `json:"id"`
	BusinessID uuid.UUID   `json:"businessId"`
	Name       string      `json:"name"`
	Code       string      `json:"code"`
	Class      MethodClass `json:"class"`
	IsActive   bool        `json:"isActive"`
}

// Reader exposes the catalog reads the ledger core consumes. The catalog
// itself (CRUD, validation) lives outside this service.
type Reader interface {
	ActiveFundingAccounts(ctx context.Context, businessID uuid.UUID) ([]FundingAccount, error)
	ActivePaymentMethods(ctx context.Context, businessID uuid.UUID) ([]PaymentMethod, error)
	PaymentMethodByID(ctx context.Context, businessID, id uuid.UUID) (*PaymentMethod, error)
}
