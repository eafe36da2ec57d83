package registers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lucero-pos/lucero/internal/shared"
)

// RepositoryPort defines data access methods for cash registers.
type RepositoryPort interface {
	Insert(ctx context.Context, reg *CashRegister) error
	Get(ctx context.Context, businessID, id uuid.UUID) (*CashRegister, error)
	List(ctx context.Context, businessID uuid.UUID, includeInactive bool) ([]CashRegister, error)
	Deactivate(ctx context.Context, businessID, id uuid.UUID, stamp shared.AuditStamp, reason string) (*CashRegister, error)
	Reactivate(ctx context.Context, businessID, id uuid.UUID, stamp shared.AuditStamp) (*CashRegister, error)
}

// AuditSink records lifecycle actions for later review.
type AuditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles cash register lifecycle rules.
type Service struct {
	repo  RepositoryPort
	audit AuditSink
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithAudit enables audit logging of lifecycle transitions.
func (s *Service) WithAudit(sink AuditSink) {
	s.audit = sink
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Identity, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: actor.BusinessID,
		ActorName:  actor.ActorName,
		Action:     action,
		Entity:     "cash_register",
		EntityID:   id.String(),
		Meta:       meta,
		At:         s.now(),
	})
}

// Create registers a new till for the acting business.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CashRegister, error) {
	actor := shared.IdentityFromContext(ctx)
	if actor.BusinessID == uuid.Nil {
		return nil, shared.NewValidationError("businessId", "is required")
	}
	name := NormalizeName(in.Name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	reg := &CashRegister{
		ID:         uuid.New(),
		BusinessID: actor.BusinessID,
		Name:       name,
		IsActive:   true,
		Created:    shared.StampFrom(actor, s.now()),
	}
	if err := s.repo.Insert(ctx, reg); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			return nil, shared.NewValidationError("name", "already in use")
		}
		return nil, err
	}
	s.recordAudit(ctx, actor, "create", reg.ID, nil)
	return reg, nil
}

// Deactivate soft-deletes a register. Fails when it would leave the business
// without an active register, or when the audit fields are incomplete.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID, in DeactivateInput) (*CashRegister, error) {
	actor := shared.IdentityFromContext(ctx)
	if err := in.Validate(actor); err != nil {
		return nil, err
	}
	reg, err := s.repo.Deactivate(ctx, actor.BusinessID, id, shared.StampFrom(actor, s.now()), in.Reason)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "deactivate", reg.ID, map[string]any{"reason": in.Reason})
	return reg, nil
}

// Reactivate resumes use of a deactivated register. Blocked while the
// register still has an open snapshot.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (*CashRegister, error) {
	actor := shared.IdentityFromContext(ctx)
	reg, err := s.repo.Reactivate(ctx, actor.BusinessID, id, shared.StampFrom(actor, s.now()))
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "reactivate", reg.ID, nil)
	return reg, nil
}

// Get returns a single register.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*CashRegister, error) {
	actor := shared.IdentityFromContext(ctx)
	return s.repo.Get(ctx, actor.BusinessID, id)
}

// List returns the business's registers.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]CashRegister, error) {
	actor := shared.IdentityFromContext(ctx)
	return s.repo.List(ctx, actor.BusinessID, includeInactive)
}
