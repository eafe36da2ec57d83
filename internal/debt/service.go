package debt

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucero-pos/lucero/internal/shared"
)

// RepositoryPort defines data access methods for debts.
type RepositoryPort interface {
	Insert(ctx context.Context, d *Debt) error
	Get(ctx context.Context, businessID, id uuid.UUID) (*Debt, error)
	List(ctx context.Context, businessID uuid.UUID, status Status) ([]Debt, error)
	Transition(ctx context.Context, businessID, id uuid.UUID, guard func(*Debt) error, mutate func(*Debt)) (*Debt, error)
}

// Service orchestrates the debt lifecycle.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateFromSale opens a client debt for a sale's unpaid remainder.
func (s *Service) CreateFromSale(ctx context.Context, in CreateInput) (*Debt, error) {
	return s.create(ctx, in, OriginSale)
}

// CreateFromPurchaseInvoice opens a supplier debt for an unpaid invoice.
func (s *Service) CreateFromPurchaseInvoice(ctx context.Context, in CreateInput) (*Debt, error) {
	return s.create(ctx, in, OriginPurchaseInvoice)
}

// CreateManual opens a debt with no originating document.
func (s *Service) CreateManual(ctx context.Context, in CreateInput) (*Debt, error) {
	return s.create(ctx, in, OriginManual)
}

func (s *Service) create(ctx context.Context, in CreateInput, origin OriginType) (*Debt, error) {
	actor := shared.IdentityFromContext(ctx)
	if err := in.validate(origin); err != nil {
		return nil, err
	}
	d := &Debt{
		ID:                  uuid.New(),
		BusinessID:          actor.BusinessID,
		ClientID:            in.ClientID,
		SupplierID:          in.SupplierID,
		DailyCashSnapshotID: in.DailyCashSnapshotID,
		OriginType:          origin,
		SaleID:              in.SaleID,
		PurchaseInvoiceID:   in.PurchaseInvoiceID,
		OriginalAmount:      in.OriginalAmount,
		PaidAmount:          decimal.Zero,
		RemainingAmount:     in.OriginalAmount,
		Status:              StatusActive,
		Created:             shared.StampFrom(actor, s.now()),
	}
	if err := s.repo.Insert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// RecordPayment applies a payment to an active debt. Overpaying beyond the
// amount tolerance is rejected. Once the remaining amount reaches zero within
// tolerance the debt transitions to paid and PaidAt is stamped. A snapshot
// reference supplied with the payment is propagated onto customer debts.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (*Debt, error) {
	actor := shared.IdentityFromContext(ctx)
	fields := shared.FieldErrors{}
	if in.DebtID == uuid.Nil {
		fields.Add("debtId", "is required")
	}
	if !in.Amount.IsPositive() {
		fields.Add("amount", "must be greater than zero")
	}
	if err := fields.AsError(); err != nil {
		return nil, err
	}

	now := s.now()
	stamp := shared.StampFrom(actor, now)
	return s.repo.Transition(ctx, actor.BusinessID, in.DebtID,
		func(cur *Debt) error {
			if cur.Status != StatusActive {
				return ErrNotActive
			}
			if shared.AmountExceeds(in.Amount, cur.RemainingAmount) {
				return shared.NewValidationError("amount", "exceeds the remaining debt amount")
			}
			if in.DailyCashSnapshotID != nil && !cur.IsCustomer() {
				return shared.NewValidationError("dailyCashSnapshotId", "must not be set on supplier debts")
			}
			return nil
		},
		func(cur *Debt) {
			cur.PaidAmount = cur.PaidAmount.Add(in.Amount)
			cur.RemainingAmount = cur.OriginalAmount.Sub(cur.PaidAmount)
			if in.DailyCashSnapshotID != nil && cur.IsCustomer() {
				cur.DailyCashSnapshotID = in.DailyCashSnapshotID
			}
			if shared.IsZeroAmount(cur.RemainingAmount) {
				cur.Status = StatusPaid
				paidAt := now
				cur.PaidAt = &paidAt
			}
			cur.Updated = &stamp
		})
}

// Cancel moves an active debt to cancelled. A reason and an identified actor
// are required.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (*Debt, error) {
	actor := shared.IdentityFromContext(ctx)
	fields := shared.FieldErrors{}
	if in.DebtID == uuid.Nil {
		fields.Add("debtId", "is required")
	}
	if in.Reason == "" {
		fields.Add("reason", "is required")
	}
	if actor.ActorID == uuid.Nil || actor.ActorName == "" {
		fields.Add("actor", "cancelling identity is required")
	}
	if err := fields.AsError(); err != nil {
		return nil, err
	}

	stamp := shared.StampFrom(actor, s.now())
	return s.repo.Transition(ctx, actor.BusinessID, in.DebtID,
		func(cur *Debt) error {
			if cur.Status != StatusActive {
				return ErrNotActive
			}
			return nil
		},
		func(cur *Debt) {
			cur.Status = StatusCancelled
			cur.CancelReason = in.Reason
			cur.Updated = &stamp
		})
}

// Reactivate moves a cancelled debt back to active.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (*Debt, error) {
	actor := shared.IdentityFromContext(ctx)
	stamp := shared.StampFrom(actor, s.now())
	return s.repo.Transition(ctx, actor.BusinessID, id,
		func(cur *Debt) error {
			if cur.Status != StatusCancelled {
				return ErrNotCancelled
			}
			return nil
		},
		func(cur *Debt) {
			cur.Status = StatusActive
			cur.CancelReason = ""
			cur.Updated = &stamp
		})
}

// Get returns a debt.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Debt, error) {
	actor := shared.IdentityFromContext(ctx)
	return s.repo.Get(ctx, actor.BusinessID, id)
}

// List returns debts, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]Debt, error) {
	actor := shared.IdentityFromContext(ctx)
	switch status {
	case "", StatusActive, StatusPaid, StatusCancelled:
	default:
		return nil, shared.NewValidationError("status", "must be one of active, paid, cancelled")
	}
	return s.repo.List(ctx, actor.BusinessID, status)
}
