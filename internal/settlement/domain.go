package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucero-pos/lucero/internal/shared"
)

// Status enumerates the settlement lifecycle. A settlement starts pending,
// may settle or cancel, and a cancelled one may be reopened to pending.
// Settled is terminal except for the metadata note.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSettled   Status = "settled"
	StatusCancelled Status = "cancelled"
)

// Settlement tracks a card or provider payment that counted as paid at sale
// time but reaches the wallet only once the provider pays out.
type Settlement struct {
	ID                  uuid.UUID           `json:"id"`
	BusinessID          uuid.UUID           `json:"businessId"`
	SaleID              uuid.UUID           `json:"saleId"`
	DailyCashSnapshotID uuid.UUID           `json:"dailyCashSnapshotId"`
	CashRegisterID      uuid.UUID           `json:"cashRegisterId"`
	PaymentMethodID     uuid.UUID           `json:"paymentMethodId"`
	PaymentMethodName   string              `json:"paymentMethodName"`
	Status              Status              `json:"status"`
	AmountTotal         decimal.Decimal     `json:"amountTotal"`
	AmountFee           decimal.NullDecimal `json:"amountFee"`
	PercentageFee       decimal.NullDecimal `json:"percentageFee"`
	PaidDate            *time.Time          `json:"paidDate,omitempty"`
	Note                string              `json:"note,omitempty"`
	CancelReason        string              `json:"cancelReason,omitempty"`
	Created             shared.AuditStamp   `json:"created"`
	Updated             *shared.AuditStamp  `json:"updated,omitempty"`
}

func (Settlement) DeletePolicy() shared.DeletePolicy { return shared.DeleteNever }

var (
	// ErrNotPending indicates a settle or cancel on a non-pending settlement.
	ErrNotPending = fmt.Errorf("settlement: %w: settlement is not pending", shared.ErrStateConflict)
	// ErrNotCancelled indicates a reopen on a non-cancelled settlement.
	ErrNotCancelled = fmt.Errorf("settlement: %w: settlement is not cancelled", shared.ErrStateConflict)
	// ErrSettled indicates a mutation on a settled settlement beyond metadata.
	ErrSettled = fmt.Errorf("settlement: %w: settlement is settled", shared.ErrImmutable)
)

// CreateInput carries the parameters for a new pending settlement.
type CreateInput struct {
	SaleID              uuid.UUID           `json:"saleId"`
	DailyCashSnapshotID uuid.UUID           `json:"dailyCashSnapshotId"`
	CashRegisterID      uuid.UUID           `json:"cashRegisterId"`
	PaymentMethodID     uuid.UUID           `json:"paymentMethodId"`
	AmountTotal         decimal.Decimal     `json:"amountTotal"`
	AmountFee           decimal.NullDecimal `json:"amountFee"`
	PercentageFee       decimal.NullDecimal `json:"percentageFee"`
}

// Validate checks amounts and the fee agreement: when both fee fields are
// present they must describe the same charge within the amount tolerance.
func (in CreateInput) Validate() error {
	fields := shared.FieldErrors{}
	if in.SaleID == uuid.Nil {
		fields.Add("saleId", "is required")
	}
	if in.DailyCashSnapshotID == uuid.Nil {
		fields.Add("dailyCashSnapshotId", "is required")
	}
	if in.CashRegisterID == uuid.Nil {
		fields.Add("cashRegisterId", "is required")
	}
	if in.PaymentMethodID == uuid.Nil {
		fields.Add("paymentMethodId", "is required")
	}
	if !in.AmountTotal.IsPositive() {
		fields.Add("amountTotal", "must be greater than zero")
	}
	if in.AmountFee.Valid && in.AmountFee.Decimal.IsNegative() {
		fields.Add("amountFee", "must not be negative")
	}
	if in.PercentageFee.Valid {
		pct := in.PercentageFee.Decimal
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			fields.Add("percentageFee", "must be between 0 and 100")
		}
	}
	if in.AmountFee.Valid && in.PercentageFee.Valid && in.AmountTotal.IsPositive() {
		implied := in.AmountTotal.Mul(in.PercentageFee.Decimal).Div(decimal.NewFromInt(100))
		if !shared.AmountsEqual(implied, in.AmountFee.Decimal) {
			fields.Add("amountFee", "does not agree with percentageFee over amountTotal")
		}
	}
	return fields.AsError()
}

// SettleInput carries the payout date for a settle transition.
type SettleInput struct {
	SettlementID uuid.UUID  `json:"settlementId"`
	PaidDate     *time.Time `json:"paidDate"`
}

// CancelInput carries the reason for a cancel transition.
type CancelInput struct {
	SettlementID uuid.UUID `json:"settlementId"`
	Reason       string    `json:"reason"`
}
