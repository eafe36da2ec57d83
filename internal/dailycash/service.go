package dailycash

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucero-pos/lucero/internal/catalog"
	"github.com/lucero-pos/lucero/internal/shared"
)

// RepositoryPort defines data access methods for daily cash.
type RepositoryPort interface {
	InsertSnapshot(ctx context.Context, snap *Snapshot) error
	GetSnapshot(ctx context.Context, businessID, id uuid.UUID) (*Snapshot, error)
	OpenSnapshotForRegister(ctx context.Context, businessID, registerID uuid.UUID) (*Snapshot, error)
	LastClosedSnapshot(ctx context.Context, businessID, registerID uuid.UUID) (*Snapshot, error)
	RegisterActive(ctx context.Context, businessID, registerID uuid.UUID) (bool, error)
	CloseSnapshot(ctx context.Context, businessID, id uuid.UUID, closing, differences []BalanceLine, stamp shared.AuditStamp) (*Snapshot, error)
	InsertTransaction(ctx context.Context, entry *Transaction) error
	ListTransactions(ctx context.Context, businessID, snapshotID uuid.UUID) ([]Transaction, error)
}

// Service orchestrates the daily snapshot state machine and its ledger.
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

// Open starts a snapshot for a register. Explicit opening balances are
// validated as supplied; when omitted, the cash-only carry-forward from the
// register's last closed snapshot is used, zero when none exists. Non-cash
// balances never carry forward: they only move through the weekly ledger.
func (s *Service) Open(ctx context.Context, in OpenInput) (*Snapshot, error) {
	actor := shared.IdentityFromContext(ctx)
	if in.CashRegisterID == uuid.Nil {
		return nil, shared.NewValidationError("cashRegisterId", "is required")
	}
	active, err := s.repo.RegisterActive(ctx, actor.BusinessID, in.CashRegisterID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrRegisterInactive
	}

	opening := in.OpeningBalances
	if len(opening) == 0 {
		opening, err = s.carryForward(ctx, actor.BusinessID, in.CashRegisterID)
		if err != nil {
			return nil, err
		}
	}
	if err := ValidateBalanceLines("openingBalances", opening, false); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ID:              uuid.New(),
		BusinessID:      actor.BusinessID,
		CashRegisterID:  in.CashRegisterID,
		Status:          SnapshotStatusOpen,
		OpeningBalances: opening,
		Opened:          shared.StampFrom(actor, s.now()),
	}
	if err := s.repo.InsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// carryForward builds opening balances from the last closed snapshot's cash
// line, or a zero cash line when the register has no history.
func (s *Service) carryForward(ctx context.Context, businessID, registerID uuid.UUID) ([]BalanceLine, error) {
	last, err := s.repo.LastClosedSnapshot(ctx, businessID, registerID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if last != nil {
		for _, line := range last.ClosingBalances {
			if line.AccountCode == catalog.CashAccountCode {
				return []BalanceLine{line}, nil
			}
		}
	}
	accounts, err := s.catalog.ActiveFundingAccounts(ctx, businessID)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if account.Code == catalog.CashAccountCode {
			return []BalanceLine{{
				AccountID:   account.ID,
				AccountName: account.Name,
				AccountCode: account.Code,
				Amount:      decimal.Zero,
			}}, nil
		}
	}
	return nil, shared.NewValidationError("openingBalances", "business has no active cash funding account")
}

// Close transitions an open snapshot to closed with the caller's counted
// balances. Differences are stored for audit and never applied as
// corrections. A closed snapshot rejects every later write.
func (s *Service) Close(ctx context.Context, in CloseInput) (*Snapshot, error) {
	actor := shared.IdentityFromContext(ctx)
	fields := shared.FieldErrors{}
	if in.SnapshotID == uuid.Nil {
		fields.Add("snapshotId", "is required")
	}
	if actor.ActorID == uuid.Nil || actor.ActorName == "" {
		fields.Add("actor", "closer identity is required")
	}
	if err := fields.AsError(); err != nil {
		return nil, err
	}
	if err := ValidateBalanceLines("closingBalances", in.ClosingBalances, false); err != nil {
		return nil, err
	}
	if len(in.Differences) > 0 {
		if err := ValidateBalanceLines("differences", in.Differences, true); err != nil {
			return nil, err
		}
	}
	return s.repo.CloseSnapshot(ctx, actor.BusinessID, in.SnapshotID, in.ClosingBalances, in.Differences, shared.StampFrom(actor, s.now()))
}

// Record appends an immutable ledger entry to an open snapshot.
func (s *Service) Record(ctx context.Context, in RecordInput) (*Transaction, error) {
	actor := shared.IdentityFromContext(ctx)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	entry := &Transaction{
		ID:                  uuid.New(),
		BusinessID:          actor.BusinessID,
		DailyCashSnapshotID: in.SnapshotID,
		Type:                in.Type,
		Amount:              in.Amount,
		SaleID:              in.SaleID,
		DebtID:              in.DebtID,
		WalletID:            in.WalletID,
		Created:             shared.StampFrom(actor, s.now()),
	}
	if err := s.repo.InsertTransaction(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Get returns a snapshot.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	actor := shared.IdentityFromContext(ctx)
	return s.repo.GetSnapshot(ctx, actor.BusinessID, id)
}

// OpenForRegister returns the register's currently open snapshot.
func (s *Service) OpenForRegister(ctx context.Context, registerID uuid.UUID) (*Snapshot, error) {
	actor := shared.IdentityFromContext(ctx)
	return s.repo.OpenSnapshotForRegister(ctx, actor.BusinessID, registerID)
}

// Transactions returns a snapshot's ledger entries.
func (s *Service) Transactions(ctx context.Context, snapshotID uuid.UUID) ([]Transaction, error) {
	actor := shared.IdentityFromContext(ctx)
	if _, err := s.repo.GetSnapshot(ctx, actor.BusinessID, snapshotID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, actor.BusinessID, snapshotID)
}

// CashBalance folds the snapshot's ledger over its opening cash amount:
// opening + sale + debt_payment + inject - extract. Only the cash account is
// itemized at the daily tier; every other account moves through the weekly
// global ledger.
func (s *Service) CashBalance(ctx context.Context, snapshotID uuid.UUID) (decimal.Decimal, error) {
	actor := shared.IdentityFromContext(ctx)
	snap, err := s.repo.GetSnapshot(ctx, actor.BusinessID, snapshotID)
	if err != nil {
		return decimal.Zero, err
	}
	entries, err := s.repo.ListTransactions(ctx, actor.BusinessID, snapshotID)
	if err != nil {
		return decimal.Zero, err
	}
	return FoldCash(snap.CashOpening(), entries), nil
}

// ExpectedClosing returns the computed cash expectation for close-time audit:
// callers count the till and report counted-minus-expected differences.
func (s *Service) ExpectedClosing(ctx context.Context, snapshotID uuid.UUID) (decimal.Decimal, error) {
	return s.CashBalance(ctx, snapshotID)
}

// FoldCash applies the daily ledger to an opening cash amount.
func FoldCash(opening decimal.Decimal, entries []Transaction) decimal.Decimal {
	balance := opening
	for _, entry := range entries {
		switch entry.Type {
		case TypeSale, TypeDebtPayment, TypeInject:
			balance = balance.Add(entry.Amount)
		case TypeExtract:
			balance = balance.Sub(entry.Amount)
		}
	}
	return balance
}
