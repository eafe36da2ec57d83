package globalcash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/lucero-pos/lucero/internal/catalog"
	"github.com/lucero-pos/lucero/internal/shared"
)

// RepositoryPort defines data access methods for the weekly ledger.
type RepositoryPort interface {
	InsertPeriod(ctx context.Context, period *Period) error
	GetPeriod(ctx context.Context, businessID, id uuid.UUID) (*Period, error)
	OpenPeriod(ctx context.Context, businessID uuid.UUID) (*Period, error)
	PeriodByWeek(ctx context.Context, businessID uuid.UUID, weekStart time.Time) (*Period, error)
	LastClosedPeriod(ctx context.Context, businessID uuid.UUID) (*Period, error)
	ClosePeriod(ctx context.Context, businessID, id uuid.UUID, closing, differences []BalanceLine, stamp shared.AuditStamp) (*Period, error)
	InsertWallet(ctx context.Context, entry *WalletTransaction) error
	GetWallet(ctx context.Context, businessID, id uuid.UUID) (*WalletTransaction, error)
	CancelWallet(ctx context.Context, businessID, id uuid.UUID, stamp shared.AuditStamp) (*WalletTransaction, error)
	ListWallet(ctx context.Context, businessID, periodID uuid.UUID) ([]WalletTransaction, error)
}

// staleWarnDays is how long past Monday an unclosed previous week only warns.
// Beyond it the period is closed automatically.
const staleWarnDays = 2

// PeriodCheck reports the outcome of the previous-week policy.
type PeriodCheck struct {
	Period     *Period  `json:"period,omitempty"`
	AutoClosed bool     `json:"autoClosed"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Service orchestrates the weekly period state machine and its wallet ledger.
type Service struct {
	repo    RepositoryPort
	catalog catalog.Reader
	ensure  singleflight.Group
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

// Open starts a period for the current week. When opening balances are
// omitted they carry forward from the last closed period, or zero-initialize
// from the active funding accounts when the business has no history.
func (s *Service) Open(ctx context.Context, in OpenInput) (*Period, error) {
	actor := shared.IdentityFromContext(ctx)
	return s.open(ctx, actor, in.OpeningBalances)
}

func (s *Service) open(ctx context.Context, actor shared.Identity, opening []BalanceLine) (*Period, error) {
	var err error
	if len(opening) == 0 {
		opening, err = s.carryForward(ctx, actor.BusinessID)
		if err != nil {
			return nil, err
		}
	}
	if err := ValidateBalanceLines("openingBalances", opening, false); err != nil {
		return nil, err
	}
	period := &Period{
		ID:              uuid.New(),
		BusinessID:      actor.BusinessID,
		WeekStart:       WeekStartFor(s.now()),
		Status:          PeriodStatusOpen,
		OpeningBalances: opening,
		Opened:          shared.StampFrom(actor, s.now()),
	}
	if err := s.repo.InsertPeriod(ctx, period); err != nil {
		return nil, err
	}
	return period, nil
}

func (s *Service) carryForward(ctx context.Context, businessID uuid.UUID) ([]BalanceLine, error) {
	last, err := s.repo.LastClosedPeriod(ctx, businessID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if last != nil && len(last.ClosingBalances) > 0 {
		return last.ClosingBalances, nil
	}
	accounts, err := s.catalog.ActiveFundingAccounts(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, shared.NewValidationError("openingBalances", "business has no active funding accounts")
	}
	lines := make([]BalanceLine, 0, len(accounts))
	for _, account := range accounts {
		lines = append(lines, BalanceLine{
			AccountID:   account.ID,
			AccountName: account.Name,
			AccountCode: account.Code,
			Amount:      decimal.Zero,
		})
	}
	return lines, nil
}

// EnsureCurrentWeek returns the period covering the current week, creating it
// when absent. Concurrent calls for the same business collapse into a single
// create via singleflight; the partial unique index backstops races across
// processes.
func (s *Service) EnsureCurrentWeek(ctx context.Context) (*Period, error) {
	actor := shared.IdentityFromContext(ctx)
	weekStart := WeekStartFor(s.now())

	v, err, _ := s.ensure.Do(actor.BusinessID.String(), func() (any, error) {
		existing, err := s.repo.PeriodByWeek(ctx, actor.BusinessID, weekStart)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		period, err := s.open(ctx, actor, nil)
		if errors.Is(err, ErrPeriodAlreadyOpen) {
			// Lost the race, or a stale previous week is still open.
			if existing, lookupErr := s.repo.PeriodByWeek(ctx, actor.BusinessID, weekStart); lookupErr == nil {
				return existing, nil
			}
			return nil, err
		}
		return period, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Period), nil
}

// CheckPreviousWeek applies the stale-period policy: an unclosed period from a
// previous week yields a warning for the first two days past Monday, then is
// closed automatically with computed balances, zero differences and a system
// actor stamp. Idempotent once the stale period is closed.
func (s *Service) CheckPreviousWeek(ctx context.Context) (*PeriodCheck, error) {
	actor := shared.IdentityFromContext(ctx)
	now := s.now()
	weekStart := WeekStartFor(now)

	open, err := s.repo.OpenPeriod(ctx, actor.BusinessID)
	if errors.Is(err, shared.ErrNotFound) {
		return &PeriodCheck{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !open.WeekStart.Before(weekStart) {
		// Current week, nothing stale.
		return &PeriodCheck{Period: open}, nil
	}

	daysSinceMonday := int(now.Sub(weekStart).Hours() / 24)
	if daysSinceMonday <= staleWarnDays {
		return &PeriodCheck{
			Period: open,
			Warnings: []string{fmt.Sprintf(
				"previous week period %s (week of %s) is still open",
				open.ID, open.WeekStart.Format("2006-01-02"))},
		}, nil
	}
	closed, err := s.autoClose(ctx, actor.BusinessID, open)
	if err != nil {
		return nil, err
	}
	return &PeriodCheck{Period: closed, AutoClosed: true}, nil
}

// autoClose computes closing balances as opening plus income minus outcome
// per account, cancelled entries excluded, and closes with zero differences.
func (s *Service) autoClose(ctx context.Context, businessID uuid.UUID, period *Period) (*Period, error) {
	entries, err := s.repo.ListWallet(ctx, businessID, period.ID)
	if err != nil {
		return nil, err
	}
	closing := FoldBalances(period.OpeningBalances, entries)
	differences := make([]BalanceLine, len(closing))
	for i, line := range closing {
		differences[i] = line
		differences[i].Amount = decimal.Zero
	}
	stamp := shared.StampFrom(shared.SystemIdentity(businessID), s.now())
	return s.repo.ClosePeriod(ctx, businessID, period.ID, closing, differences, stamp)
}

// Close applies a manual close with caller-counted balances. Differences are
// derived as counted minus computed expectation per account and stored for
// audit.
func (s *Service) Close(ctx context.Context, in CloseInput) (*Period, error) {
	actor := shared.IdentityFromContext(ctx)
	fields := shared.FieldErrors{}
	if in.PeriodID == uuid.Nil {
		fields.Add("periodId", "is required")
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

	period, err := s.repo.GetPeriod(ctx, actor.BusinessID, in.PeriodID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListWallet(ctx, actor.BusinessID, period.ID)
	if err != nil {
		return nil, err
	}
	expected := FoldBalances(period.OpeningBalances, entries)
	differences := diffBalances(in.ClosingBalances, expected)

	return s.repo.ClosePeriod(ctx, actor.BusinessID, in.PeriodID, in.ClosingBalances, differences, shared.StampFrom(actor, s.now()))
}

// RecordWallet appends an entry to an open period. Account and method display
// names are resolved from the catalog and frozen on the entry.
func (s *Service) RecordWallet(ctx context.Context, in RecordWalletInput) (*WalletTransaction, error) {
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
	accountName, err := s.fundingAccountName(ctx, actor.BusinessID, in.AccountTypeID)
	if err != nil {
		return nil, err
	}

	entry := &WalletTransaction{
		ID:                uuid.New(),
		BusinessID:        actor.BusinessID,
		GlobalCashID:      in.GlobalCashID,
		Type:              in.Type,
		Status:            WalletStatusPaid,
		Amount:            in.Amount,
		AccountTypeID:     in.AccountTypeID,
		AccountTypeName:   accountName,
		PaymentMethodID:   method.ID,
		PaymentMethodName: method.Name,
		SaleID:            in.SaleID,
		DebtID:            in.DebtID,
		SettlementID:      in.SettlementID,
		PurchaseInvoiceID: in.PurchaseInvoiceID,
		SupplierID:        in.SupplierID,
		Created:           shared.StampFrom(actor, s.now()),
	}
	if err := s.repo.InsertWallet(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) fundingAccountName(ctx context.Context, businessID, accountID uuid.UUID) (string, error) {
	accounts, err := s.catalog.ActiveFundingAccounts(ctx, businessID)
	if err != nil {
		return "", err
	}
	for _, account := range accounts {
		if account.ID == accountID {
			return account.Name, nil
		}
	}
	return "", shared.NewValidationError("accountTypeId", "unknown funding account")
}

// CancelWallet cancels a paid entry. Cancelled entries stay in the ledger but
// are excluded from balance folds.
func (s *Service) CancelWallet(ctx context.Context, id uuid.UUID) (*WalletTransaction, error) {
	actor := shared.IdentityFromContext(ctx)
	if actor.ActorID == uuid.Nil || actor.ActorName == "" {
		return nil, shared.NewValidationError("actor", "cancelling identity is required")
	}
	return s.repo.CancelWallet(ctx, actor.BusinessID, id, shared.StampFrom(actor, s.now()))
}

// Get returns a period.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Period, error) {
	actor := shared.IdentityFromContext(ctx)
	return s.repo.GetPeriod(ctx, actor.BusinessID, id)
}

// Current returns the business's open period.
func (s *Service) Current(ctx context.Context) (*Period, error) {
	actor := shared.IdentityFromContext(ctx)
	return s.repo.OpenPeriod(ctx, actor.BusinessID)
}

// WalletTransactions returns a period's ledger entries.
func (s *Service) WalletTransactions(ctx context.Context, periodID uuid.UUID) ([]WalletTransaction, error) {
	actor := shared.IdentityFromContext(ctx)
	if _, err := s.repo.GetPeriod(ctx, actor.BusinessID, periodID); err != nil {
		return nil, err
	}
	return s.repo.ListWallet(ctx, actor.BusinessID, periodID)
}

// Balances returns the period's computed per-account balances: opening plus
// income minus outcome, cancelled entries excluded.
func (s *Service) Balances(ctx context.Context, periodID uuid.UUID) ([]BalanceLine, error) {
	actor := shared.IdentityFromContext(ctx)
	period, err := s.repo.GetPeriod(ctx, actor.BusinessID, periodID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListWallet(ctx, actor.BusinessID, periodID)
	if err != nil {
		return nil, err
	}
	return FoldBalances(period.OpeningBalances, entries), nil
}

// FoldBalances applies a wallet ledger to opening balances per funding
// account. Entries against accounts absent from the opening set start from
// zero and are appended in first-seen order. Cancelled entries are skipped.
func FoldBalances(opening []BalanceLine, entries []WalletTransaction) []BalanceLine {
	out := make([]BalanceLine, len(opening))
	index := make(map[uuid.UUID]int, len(opening))
	for i, line := range opening {
		out[i] = line
		index[line.AccountID] = i
	}
	for _, entry := range entries {
		if entry.Status == WalletStatusCancelled {
			continue
		}
		i, ok := index[entry.AccountTypeID]
		if !ok {
			out = append(out, BalanceLine{
				AccountID:   entry.AccountTypeID,
				AccountName: entry.AccountTypeName,
				Amount:      decimal.Zero,
			})
			i = len(out) - 1
			index[entry.AccountTypeID] = i
		}
		switch entry.Type {
		case WalletIncome:
			out[i].Amount = out[i].Amount.Add(entry.Amount)
		case WalletOutcome:
			out[i].Amount = out[i].Amount.Sub(entry.Amount)
		}
	}
	return out
}

// diffBalances returns counted minus expected per account. Accounts present
// on only one side are treated as zero on the other.
func diffBalances(counted, expected []BalanceLine) []BalanceLine {
	expectedByAccount := make(map[uuid.UUID]decimal.Decimal, len(expected))
	for _, line := range expected {
		expectedByAccount[line.AccountID] = line.Amount
	}
	out := make([]BalanceLine, 0, len(counted))
	seen := make(map[uuid.UUID]struct{}, len(counted))
	for _, line := range counted {
		diff := line
		diff.Amount = line.Amount.Sub(expectedByAccount[line.AccountID])
		out = append(out, diff)
		seen[line.AccountID] = struct{}{}
	}
	for _, line := range expected {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		diff := line
		diff.Amount = line.Amount.Neg()
		out = append(out, diff)
	}
	return out
}
