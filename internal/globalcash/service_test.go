package globalcash

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lucero-pos/lucero/internal/catalog"
	"github.com/lucero-pos/lucero/internal/shared"
)

type memoryGlobalRepo struct {
	periods map[uuid.UUID]*Period
	wallet  map[uuid.UUID]*WalletTransaction
	closes  int
}

func newMemoryGlobalRepo() *memoryGlobalRepo {
	return &memoryGlobalRepo{
		periods: make(map[uuid.UUID]*Period),
		wallet:  make(map[uuid.UUID]*WalletTransaction),
	}
}

func (r *memoryGlobalRepo) InsertPeriod(ctx context.Context, period *Period) error {
	for _, existing := range r.periods {
		if existing.BusinessID == period.BusinessID && existing.Status == PeriodStatusOpen {
			return ErrPeriodAlreadyOpen
		}
	}
	clone := *period
	r.periods[period.ID] = &clone
	return nil
}

func (r *memoryGlobalRepo) GetPeriod(ctx context.Context, businessID, id uuid.UUID) (*Period, error) {
	period, ok := r.periods[id]
	if !ok || period.BusinessID != businessID {
		return nil, shared.ErrNotFound
	}
	clone := *period
	return &clone, nil
}

func (r *memoryGlobalRepo) OpenPeriod(ctx context.Context, businessID uuid.UUID) (*Period, error) {
	for _, period := range r.periods {
		if period.BusinessID == businessID && period.Status == PeriodStatusOpen {
			clone := *period
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryGlobalRepo) PeriodByWeek(ctx context.Context, businessID uuid.UUID, weekStart time.Time) (*Period, error) {
	for _, period := range r.periods {
		if period.BusinessID == businessID && period.WeekStart.Equal(weekStart) {
			clone := *period
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryGlobalRepo) LastClosedPeriod(ctx context.Context, businessID uuid.UUID) (*Period, error) {
	var latest *Period
	for _, period := range r.periods {
		if period.BusinessID != businessID || period.Status != PeriodStatusClosed {
			continue
		}
		if latest == nil || period.WeekStart.After(latest.WeekStart) {
			latest = period
		}
	}
	if latest == nil {
		return nil, shared.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (r *memoryGlobalRepo) ClosePeriod(ctx context.Context, businessID, id uuid.UUID, closing, differences []BalanceLine, stamp shared.AuditStamp) (*Period, error) {
	period, ok := r.periods[id]
	if !ok || period.BusinessID != businessID {
		return nil, shared.ErrNotFound
	}
	if period.Status != PeriodStatusOpen {
		return nil, ErrPeriodClosed
	}
	period.Status = PeriodStatusClosed
	period.ClosingBalances = closing
	period.Differences = differences
	period.Closed = &stamp
	r.closes++
	clone := *period
	return &clone, nil
}

func (r *memoryGlobalRepo) InsertWallet(ctx context.Context, entry *WalletTransaction) error {
	period, ok := r.periods[entry.GlobalCashID]
	if !ok || period.BusinessID != entry.BusinessID {
		return shared.ErrNotFound
	}
	if period.Status != PeriodStatusOpen {
		return ErrPeriodClosed
	}
	clone := *entry
	r.wallet[entry.ID] = &clone
	return nil
}

func (r *memoryGlobalRepo) GetWallet(ctx context.Context, businessID, id uuid.UUID) (*WalletTransaction, error) {
	entry, ok := r.wallet[id]
	if !ok || entry.BusinessID != businessID {
		return nil, shared.ErrNotFound
	}
	clone := *entry
	return &clone, nil
}

func (r *memoryGlobalRepo) CancelWallet(ctx context.Context, businessID, id uuid.UUID, stamp shared.AuditStamp) (*WalletTransaction, error) {
	entry, ok := r.wallet[id]
	if !ok || entry.BusinessID != businessID {
		return nil, shared.ErrNotFound
	}
	if entry.Status == WalletStatusCancelled {
		return nil, ErrWalletCancelled
	}
	entry.Status = WalletStatusCancelled
	entry.Cancelled = &stamp
	clone := *entry
	return &clone, nil
}

func (r *memoryGlobalRepo) ListWallet(ctx context.Context, businessID, periodID uuid.UUID) ([]WalletTransaction, error) {
	var out []WalletTransaction
	for _, entry := range r.wallet {
		if entry.BusinessID == businessID && entry.GlobalCashID == periodID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

type stubCatalog struct {
	accounts []catalog.FundingAccount
	methods  []catalog.PaymentMethod
}

func (s *stubCatalog) ActiveFundingAccounts(ctx context.Context, businessID uuid.UUID) ([]catalog.FundingAccount, error) {
	return s.accounts, nil
}

func (s *stubCatalog) ActivePaymentMethods(ctx context.Context, businessID uuid.UUID) ([]catalog.PaymentMethod, error) {
	return s.methods, nil
}

func (s *stubCatalog) PaymentMethodByID(ctx context.Context, businessID, id uuid.UUID) (*catalog.PaymentMethod, error) {
	for i := range s.methods {
		if s.methods[i].ID == id {
			return &s.methods[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

type globalFixture struct {
	repo     *memoryGlobalRepo
	svc      *Service
	ctx      context.Context
	cash     catalog.FundingAccount
	bank     catalog.FundingAccount
	transfer catalog.PaymentMethod
	clock    time.Time
}

// wednesday is mid-week so opens land inside the warning window's week.
var wednesday = time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)

func newGlobalFixture(t *testing.T) *globalFixture {
	t.Helper()
	repo := newMemoryGlobalRepo()
	cash := catalog.FundingAccount{ID: uuid.New(), Name: "Efectivo", Code: catalog.CashAccountCode, IsActive: true}
	bank := catalog.FundingAccount{ID: uuid.New(), Name: "Banco Galicia", Code: "BANCO", IsActive: true}
	transfer := catalog.PaymentMethod{ID: uuid.New(), Name: "Transferencia", Code: "TRANSFER", Class: catalog.ClassOther, IsActive: true}
	svc := NewService(repo, &stubCatalog{
		accounts: []catalog.FundingAccount{cash, bank},
		methods:  []catalog.PaymentMethod{transfer},
	})
	f := &globalFixture{repo: repo, svc: svc, cash: cash, bank: bank, transfer: transfer, clock: wednesday}
	svc.WithNow(func() time.Time { return f.clock })
	f.ctx = shared.ContextWithIdentity(context.Background(), shared.Identity{
		ActorID:    uuid.New(),
		ActorName:  "Marta Luna",
		BusinessID: uuid.New(),
	})
	return f
}

func (f *globalFixture) line(account catalog.FundingAccount, amount float64) BalanceLine {
	return BalanceLine{
		AccountID:   account.ID,
		AccountName: account.Name,
		AccountCode: account.Code,
		Amount:      decimal.NewFromFloat(amount),
	}
}

func (f *globalFixture) record(t *testing.T, periodID uuid.UUID, typ WalletType, amount float64, refs RecordWalletInput) *WalletTransaction {
	t.Helper()
	refs.GlobalCashID = periodID
	refs.Type = typ
	refs.Amount = decimal.NewFromFloat(amount)
	refs.AccountTypeID = f.bank.ID
	refs.PaymentMethodID = f.transfer.ID
	entry, err := f.svc.RecordWallet(f.ctx, refs)
	require.NoError(t, err)
	return entry
}

func TestWeekStartFor(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"monday midnight", time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)},
		{"wednesday", wednesday, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)},
		{"sunday night", time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC), time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, WeekStartFor(tc.in).Equal(tc.want))
		})
	}
}

func TestOpenZeroInitializesFromCatalog(t *testing.T) {
	f := newGlobalFixture(t)

	period, err := f.svc.Open(f.ctx, OpenInput{})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, period.Status)
	require.Len(t, period.OpeningBalances, 2)
	for _, line := range period.OpeningBalances {
		require.True(t, line.Amount.IsZero())
	}
	require.True(t, period.WeekStart.Equal(WeekStartFor(wednesday)))
}

func TestOpenCarriesForwardClosingBalances(t *testing.T) {
	f := newGlobalFixture(t)

	first, err := f.svc.Open(f.ctx, OpenInput{})
	require.NoError(t, err)
	_, err = f.svc.Close(f.ctx, CloseInput{
		PeriodID:        first.ID,
		ClosingBalances: []BalanceLine{f.line(f.cash, 500), f.line(f.bank, 1200)},
	})
	require.NoError(t, err)

	second, err := f.svc.Open(f.ctx, OpenInput{})
	require.NoError(t, err)
	require.Len(t, second.OpeningBalances, 2)
	require.True(t, second.OpeningBalances[0].Amount.Equal(decimal.NewFromInt(500)))
	require.True(t, second.OpeningBalances[1].Amount.Equal(decimal.NewFromInt(1200)))
}

func TestSecondOpenRejected(t *testing.T) {
	f := newGlobalFixture(t)

	_, err := f.svc.Open(f.ctx, OpenInput{})
	require.NoError(t, err)
	_, err = f.svc.Open(f.ctx, OpenInput{})
	require.ErrorIs(t, err, ErrPeriodAlreadyOpen)
}

func TestEnsureCurrentWeekIdempotent(t *testing.T) {
	f := newGlobalFixture(t)

	first, err := f.svc.EnsureCurrentWeek(f.ctx)
	require.NoError(t, err)
	second, err := f.svc.EnsureCurrentWeek(f.ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, f.repo.periods, 1)
}

func TestCheckPreviousWeekNothingOpen(t *testing.T) {
	f := newGlobalFixture(t)

	check, err := f.svc.CheckPreviousWeek(f.ctx)
	require.NoError(t, err)
	require.Nil(t, check.Period)
	require.False(t, check.AutoClosed)
}

func TestCheckPreviousWeekCurrentPeriod(t *testing.T) {
	f := newGlobalFixture(t)
	period, err := f.svc.Open(f.ctx, OpenInput{})
	require.NoError(t, err)

	check, err := f.svc.CheckPreviousWeek(f.ctx)
	require.NoError(t, err)
	require.Equal(t, period.ID, check.Period.ID)
	require.False(t, check.AutoClosed)
	require.Empty(t, check.Warnings)
}

func TestCheckPreviousWeekWarnsWithinTwoDays(t *testing.T) {
	f := newGlobalFixture(t)
	period, err := f.svc.Open(f.ctx, OpenInput{})
	require.NoError(t, err)

	// Tuesday of the following week: one day past Monday.
	f.clock = wednesday.AddDate(0, 0, 6)
	check, err := f.svc.CheckPreviousWeek(f.ctx)
	require.NoError(t, err)
	require.Equal(t, period.ID, check.Period.ID)
	require.False(t, check.AutoClosed)
	require.NotEmpty(t, check.Warnings)
	require.Equal(t, PeriodStatusOpen, check.Period.Status)
}

func TestCheckPreviousWeekAutoCloses(t *testing.T) {
	f := newGlobalFixture(t)
	period, err := f.svc.Open(f.ctx, OpenInput{})
	require.NoError(t, err)

	saleID := uuid.New()
	invoiceID := uuid.New()
	f.record(t, period.ID, WalletIncome, 300, RecordWalletInput{SaleID: &saleID})
	f.record(t, period.ID, WalletOutcome, 120, RecordWalletInput{PurchaseInvoiceID: &invoiceID})
	cancelled := f.record(t, period.ID, WalletIncome, 999, RecordWalletInput{SaleID: &saleID})
	_, err = f.svc.CancelWallet(f.ctx, cancelled.ID)
	require.NoError(t, err)

	// Thursday of the following week: three days past Monday.
	f.clock = wednesday.AddDate(0, 0, 8)
	check, err := f.svc.CheckPreviousWeek(f.ctx)
	require.NoError(t, err)
	require.True(t, check.AutoClosed)
	require.Equal(t, PeriodStatusClosed, check.Period.Status)
	require.Equal(t, shared.SystemActorName, check.Period.Closed.ActorName)

	// Closing = opening + income - outcome per account, cancelled excluded.
	var bankClosing decimal.Decimal
	for _, line := range check.Period.ClosingBalances {
		if line.AccountID == f.bank.ID {
			bankClosing = line.Amount
		}
	}
	require.True(t, bankClosing.Equal(decimal.NewFromInt(180)), "got %s", bankClosing)
	for _, line := range check.Period.Differences {
		require.True(t, line.Amount.IsZero())
	}

	// Second call performs no further mutation.
	closes := f.repo.closes
	again, err := f.svc.CheckPreviousWeek(f.ctx)
	require.NoError(t, err)
	require.False(t, again.AutoClosed)
	require.Equal(t, closes, f.repo.closes)
}

func TestManualCloseComputesDifferences(t *testing.T) {
	f := newGlobalFixture(t)
	period, err := f.svc.Open(f.ctx, OpenInput{})
	require.NoError(t, err)

	saleID := uuid.New()
	f.record(t, period.ID, WalletIncome, 200, RecordWalletInput{SaleID: &saleID})

	closed, err := f.svc.Close(f.ctx, CloseInput{
		PeriodID:        period.ID,
		ClosingBalances: []BalanceLine{f.line(f.cash, 0), f.line(f.bank, 150)},
	})
	require.NoError(t, err)

	// Expected bank balance is 200, counted 150, difference -50.
	var bankDiff decimal.Decimal
	for _, line := range closed.Differences {
		if line.AccountID == f.bank.ID {
			bankDiff = line.Amount
		}
	}
	require.True(t, bankDiff.Equal(decimal.NewFromInt(-50)), "got %s", bankDiff)
}

func TestRecordWalletReferenceMatrix(t *testing.T) {
	f := newGlobalFixture(t)
	period, err := f.svc.Open(f.ctx, OpenInput{})
	require.NoError(t, err)

	saleID := uuid.New()
	supplierID := uuid.New()
	invoiceID := uuid.New()
	base := RecordWalletInput{
		GlobalCashID:    period.ID,
		Amount:          decimal.NewFromInt(10),
		AccountTypeID:   f.bank.ID,
		PaymentMethodID: f.transfer.ID,
	}

	noRefs := base
	noRefs.Type = WalletIncome
	_, err = f.svc.RecordWallet(f.ctx, noRefs)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "references")

	twoRefs := base
	twoRefs.Type = WalletIncome
	twoRefs.SaleID = &saleID
	twoRefs.SupplierID = &supplierID
	_, err = f.svc.RecordWallet(f.ctx, twoRefs)
	require.ErrorAs(t, err, &verr)

	incomeSupplier := base
	incomeSupplier.Type = WalletIncome
	incomeSupplier.SupplierID = &supplierID
	_, err = f.svc.RecordWallet(f.ctx, incomeSupplier)
	require.ErrorAs(t, err, &verr)

	outcomeSale := base
	outcomeSale.Type = WalletOutcome
	outcomeSale.SaleID = &saleID
	_, err = f.svc.RecordWallet(f.ctx, outcomeSale)
	require.ErrorAs(t, err, &verr)

	outcomeInvoice := base
	outcomeInvoice.Type = WalletOutcome
	outcomeInvoice.PurchaseInvoiceID = &invoiceID
	entry, err := f.svc.RecordWallet(f.ctx, outcomeInvoice)
	require.NoError(t, err)
	require.Equal(t, WalletStatusPaid, entry.Status)
	require.Equal(t, f.transfer.Name, entry.PaymentMethodName)
	require.Equal(t, f.bank.Name, entry.AccountTypeName)
}

func TestRecordWalletRequiresOpenPeriod(t *testing.T) {
	f := newGlobalFixture(t)
	period, err := f.svc.Open(f.ctx, OpenInput{})
	require.NoError(t, err)
	_, err = f.svc.Close(f.ctx, CloseInput{
		PeriodID:        period.ID,
		ClosingBalances: []BalanceLine{f.line(f.cash, 0), f.line(f.bank, 0)},
	})
	require.NoError(t, err)

	saleID := uuid.New()
	_, err = f.svc.RecordWallet(f.ctx, RecordWalletInput{
		GlobalCashID:    period.ID,
		Type:            WalletIncome,
		Amount:          decimal.NewFromInt(10),
		AccountTypeID:   f.bank.ID,
		PaymentMethodID: f.transfer.ID,
		SaleID:          &saleID,
	})
	require.ErrorIs(t, err, ErrPeriodClosed)
}

func TestCancelWalletOneWay(t *testing.T) {
	f := newGlobalFixture(t)
	period, err := f.svc.Open(f.ctx, OpenInput{})
	require.NoError(t, err)

	saleID := uuid.New()
	entry := f.record(t, period.ID, WalletIncome, 80, RecordWalletInput{SaleID: &saleID})

	cancelled, err := f.svc.CancelWallet(f.ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, WalletStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Cancelled)

	_, err = f.svc.CancelWallet(f.ctx, entry.ID)
	require.ErrorIs(t, err, ErrWalletCancelled)

	// Cancelled entries are excluded from balances.
	lines, err := f.svc.Balances(f.ctx, period.ID)
	require.NoError(t, err)
	for _, line := range lines {
		require.True(t, line.Amount.IsZero())
	}
}
