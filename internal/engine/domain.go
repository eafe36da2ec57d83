package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucero-pos/lucero/internal/debt"
	"github.com/lucero-pos/lucero/internal/globalcash"
	"github.com/lucero-pos/lucero/internal/settlement"
	"github.com/lucero-pos/lucero/internal/shared"
)

// Sale is the primary record the engine hands to its sale store. The sale
// itself lives outside the ledger core; the engine only needs enough of it to
// route payments and open debts.
type Sale struct {
	ID                  uuid.UUID         `json:"id"`
	BusinessID          uuid.UUID         `json:"businessId"`
	ClientID            *uuid.UUID        `json:"clientId,omitempty"`
	DailyCashSnapshotID uuid.UUID         `json:"dailyCashSnapshotId"`
	CashRegisterID      uuid.UUID         `json:"cashRegisterId"`
	AmountTotal         decimal.Decimal   `json:"amountTotal"`
	IsPaidInFull        bool              `json:"isPaidInFull"`
	Created             shared.AuditStamp `json:"created"`
}

// PaymentLine is one tender of a sale or invoice. AccountTypeID names the
// funding account a non-cash line credits; fee fields apply to card lines.
type PaymentLine struct {
	PaymentMethodID uuid.UUID           `json:"paymentMethodId"`
	AccountTypeID   uuid.UUID           `json:"accountTypeId"`
	Amount          decimal.Decimal     `json:"amount"`
	AmountFee       decimal.NullDecimal `json:"amountFee"`
	PercentageFee   decimal.NullDecimal `json:"percentageFee"`
}

// ProcessSaleInput carries a sale event into the engine.
type ProcessSaleInput struct {
	ClientID            *uuid.UUID      `json:"clientId,omitempty"`
	DailyCashSnapshotID uuid.UUID       `json:"dailyCashSnapshotId"`
	CashRegisterID      uuid.UUID       `json:"cashRegisterId"`
	AmountTotal         decimal.Decimal `json:"amountTotal"`
	IsPaidInFull        bool            `json:"isPaidInFull"`
	PaymentLines        []PaymentLine   `json:"paymentLines"`
}

// Validate checks the sale-level preconditions the engine owns. Line routing
// failures are warnings, but these abort before any write.
func (in ProcessSaleInput) Validate() error {
	fields := shared.FieldErrors{}
	if in.DailyCashSnapshotID == uuid.Nil {
		fields.Add("dailyCashSnapshotId", "is required")
	}
	if in.CashRegisterID == uuid.Nil {
		fields.Add("cashRegisterId", "is required")
	}
	if !in.AmountTotal.IsPositive() {
		fields.Add("amountTotal", "must be greater than zero")
	}
	if !in.IsPaidInFull && in.ClientID == nil {
		fields.Add("clientId", "is required when the sale is not paid in full")
	}
	for i, line := range in.PaymentLines {
		if line.PaymentMethodID == uuid.Nil {
			fields.Add(lineField(i, "paymentMethodId"), "is required")
		}
		if !line.Amount.IsPositive() {
			fields.Add(lineField(i, "amount"), "must be greater than zero")
		}
	}
	return fields.AsError()
}

// ProcessSaleResult reports the sale write and every routed leg. Warnings
// carry routed legs that failed after the sale itself committed.
type ProcessSaleResult struct {
	Sale               *Sale                          `json:"sale"`
	CashTransactions   []uuid.UUID                    `json:"cashTransactions,omitempty"`
	Settlements        []*settlement.Settlement       `json:"settlements,omitempty"`
	WalletTransactions []*globalcash.WalletTransaction `json:"walletTransactions,omitempty"`
	Debt               *debt.Debt                     `json:"debt,omitempty"`
	Warnings           []string                       `json:"warnings,omitempty"`
}

// ProcessDebtPaymentInput carries a debt payment event into the engine.
type ProcessDebtPaymentInput struct {
	DebtID              uuid.UUID       `json:"debtId"`
	Amount              decimal.Decimal `json:"amount"`
	PaymentMethodID     uuid.UUID       `json:"paymentMethodId"`
	AccountTypeID       uuid.UUID       `json:"accountTypeId"`
	DailyCashSnapshotID *uuid.UUID      `json:"dailyCashSnapshotId,omitempty"`
}

// ProcessDebtPaymentResult reports the ledger legs of one debt payment.
type ProcessDebtPaymentResult struct {
	Debt              *debt.Debt                     `json:"debt"`
	WalletTransaction *globalcash.WalletTransaction  `json:"walletTransaction,omitempty"`
	CashTransactionID *uuid.UUID                     `json:"cashTransactionId,omitempty"`
	Warnings          []string                       `json:"warnings,omitempty"`
}

// ProcessPurchaseInvoiceInput carries a purchase invoice event into the
// engine. It mirrors the sale flow on the outcome side.
type ProcessPurchaseInvoiceInput struct {
	SupplierID        uuid.UUID       `json:"supplierId"`
	PurchaseInvoiceID uuid.UUID       `json:"purchaseInvoiceId"`
	AmountTotal       decimal.Decimal `json:"amountTotal"`
	IsPaidInFull      bool            `json:"isPaidInFull"`
	PaymentLines      []PaymentLine   `json:"paymentLines"`
}

// Validate checks the invoice-level preconditions.
func (in ProcessPurchaseInvoiceInput) Validate() error {
	fields := shared.FieldErrors{}
	if in.SupplierID == uuid.Nil {
		fields.Add("supplierId", "is required")
	}
	if in.PurchaseInvoiceID == uuid.Nil {
		fields.Add("purchaseInvoiceId", "is required")
	}
	if !in.AmountTotal.IsPositive() {
		fields.Add("amountTotal", "must be greater than zero")
	}
	for i, line := range in.PaymentLines {
		if line.PaymentMethodID == uuid.Nil {
			fields.Add(lineField(i, "paymentMethodId"), "is required")
		}
		if !line.Amount.IsPositive() {
			fields.Add(lineField(i, "amount"), "must be greater than zero")
		}
	}
	return fields.AsError()
}

// ProcessPurchaseInvoiceResult reports the outcome legs of one invoice.
type ProcessPurchaseInvoiceResult struct {
	WalletTransactions []*globalcash.WalletTransaction `json:"walletTransactions,omitempty"`
	Debt               *debt.Debt                      `json:"debt,omitempty"`
	Warnings           []string                        `json:"warnings,omitempty"`
}

func lineField(i int, name string) string {
	return fmt.Sprintf("paymentLines[%d].%s", i, name)
}
