package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lucero-pos/lucero/internal/catalog"
	"github.com/lucero-pos/lucero/internal/shared"
)

// RepositoryPort defines data access methods for settlements.
type RepositoryPort interface {
	Insert(ctx context.Context, s *Settlement) error
	Get(ctx context.Context, businessID, id uuid.UUID) (*Settlement, error)
	List(ctx context.Context, businessID uuid.UUID, status Status) ([]Settlement, error)
	ListBySale(ctx context.Context, businessID, saleID uuid.UUID) ([]Settlement, error)
	Transition(ctx context.Context, businessID, id uuid.UUID, guard func(*Settlement) error, mutate func(*Settlement)) (*Settlement, error)
}

// Service orchestrates the settlement state machine.
type Service struct {
	repo    RepositoryPort
	catalog catalog.Reader
	now     func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, reader catalog.Reader) *Service {
	return &Service{repo: repo, catalog: reader, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a pending settlement for a card or provider payment line. The
// method must be card-provider class; the method name is frozen on the record.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Settlement, error) {
	actor := shared.IdentityFromContext(ctx)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	method, err := s.catalog.PaymentMethodByID(ctx, actor.BusinessID, in.PaymentMethodID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewValidationError("paymentMethodId", "unknown payment method")
		}
		return nil, err
	}
	if method.Class != catalog.ClassCardProvider {
		return nil, shared.NewValidationError("paymentMethodId", "method is not a card or provider method")
	}

	out := &Settlement{
		ID:                  uuid.New(),
		BusinessID:          actor.BusinessID,
		SaleID:              in.SaleID,
		DailyCashSnapshotID: in.DailyCashSnapshotID,
		CashRegisterID:      in.CashRegisterID,
		PaymentMethodID:     method.ID,
		PaymentMethodName:   method.Name,
		Status:              StatusPending,
		AmountTotal:         in.AmountTotal,
		AmountFee:           in.AmountFee,
		PercentageFee:       in.PercentageFee,
		Created:             shared.StampFrom(actor, s.now()),
	}
	if err := s.repo.Insert(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Settle moves a pending settlement to settled. PaidDate is required, may not
// be in the future and may not precede the settlement's creation. The settled
// state gates the wallet entry the settling workflow records afterwards.
func (s *Service) Settle(ctx context.Context, in SettleInput) (*Settlement, error) {
	actor := shared.IdentityFromContext(ctx)
	fields := shared.FieldErrors{}
	if in.SettlementID == uuid.Nil {
		fields.Add("settlementId", "is required")
	}
	if in.PaidDate == nil {
		fields.Add("paidDate", "is required")
	} else if in.PaidDate.After(s.now()) {
		fields.Add("paidDate", "must not be in the future")
	}
	if err := fields.AsError(); err != nil {
		return nil, err
	}

	stamp := shared.StampFrom(actor, s.now())
	return s.repo.Transition(ctx, actor.BusinessID, in.SettlementID,
		func(cur *Settlement) error {
			if cur.Status == StatusSettled {
				return ErrSettled
			}
			if cur.Status != StatusPending {
				return ErrNotPending
			}
			if in.PaidDate.Before(cur.Created.At) {
				return shared.NewValidationError("paidDate", "must not precede settlement creation")
			}
			return nil
		},
		func(cur *Settlement) {
			cur.Status = StatusSettled
			cur.PaidDate = in.PaidDate
			cur.CancelReason = ""
			cur.Updated = &stamp
		})
}

// Cancel moves a pending settlement to cancelled. A reason is required.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (*Settlement, error) {
	actor := shared.IdentityFromContext(ctx)
	fields := shared.FieldErrors{}
	if in.SettlementID == uuid.Nil {
		fields.Add("settlementId", "is required")
	}
	if in.Reason == "" {
		fields.Add("reason", "is required")
	}
	if err := fields.AsError(); err != nil {
		return nil, err
	}

	stamp := shared.StampFrom(actor, s.now())
	return s.repo.Transition(ctx, actor.BusinessID, in.SettlementID,
		func(cur *Settlement) error {
			if cur.Status == StatusSettled {
				return ErrSettled
			}
			if cur.Status != StatusPending {
				return ErrNotPending
			}
			return nil
		},
		func(cur *Settlement) {
			cur.Status = StatusCancelled
			cur.CancelReason = in.Reason
			cur.Updated = &stamp
		})
}

// Reopen moves a cancelled settlement back to pending.
func (s *Service) Reopen(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	actor := shared.IdentityFromContext(ctx)
	stamp := shared.StampFrom(actor, s.now())
	return s.repo.Transition(ctx, actor.BusinessID, id,
		func(cur *Settlement) error {
			if cur.Status != StatusCancelled {
				return ErrNotCancelled
			}
			return nil
		},
		func(cur *Settlement) {
			cur.Status = StatusPending
			cur.CancelReason = ""
			cur.Updated = &stamp
		})
}

// UpdateNote edits the metadata note, the only mutation a settled settlement
// still accepts.
func (s *Service) UpdateNote(ctx context.Context, id uuid.UUID, note string) (*Settlement, error) {
	actor := shared.IdentityFromContext(ctx)
	stamp := shared.StampFrom(actor, s.now())
	return s.repo.Transition(ctx, actor.BusinessID, id,
		func(*Settlement) error { return nil },
		func(cur *Settlement) {
			cur.Note = note
			cur.Updated = &stamp
		})
}

// Get returns a settlement.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	actor := shared.IdentityFromContext(ctx)
	return s.repo.Get(ctx, actor.BusinessID, id)
}

// List returns settlements, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]Settlement, error) {
	actor := shared.IdentityFromContext(ctx)
	switch status {
	case "", StatusPending, StatusSettled, StatusCancelled:
	default:
		return nil, shared.NewValidationError("status", "must be one of pending, settled, cancelled")
	}
	return s.repo.List(ctx, actor.BusinessID, status)
}

// BySale returns a sale's settlements.
func (s *Service) BySale(ctx context.Context, saleID uuid.UUID) ([]Settlement, error) {
	actor := shared.IdentityFromContext(ctx)
	return s.repo.ListBySale(ctx, actor.BusinessID, saleID)
}
