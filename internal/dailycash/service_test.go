package dailycash

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lucero-pos/lucero/internal/catalog"
	"github.com/lucero-pos/lucero/internal/shared"
)

type memoryDailyRepo struct {
	snapshots    map[uuid.UUID]*Snapshot
	transactions map[uuid.UUID][]Transaction
	registers    map[uuid.UUID]bool
	closeOrder   []uuid.UUID
}

func newMemoryDailyRepo() *memoryDailyRepo {
	return &memoryDailyRepo{
		snapshots:    make(map[uuid.UUID]*Snapshot),
		transactions: make(map[uuid.UUID][]Transaction),
		registers:    make(map[uuid.UUID]bool),
	}
}

func (r *memoryDailyRepo) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	for _, existing := range r.snapshots {
		if existing.BusinessID == snap.BusinessID &&
			existing.CashRegisterID == snap.CashRegisterID &&
			existing.Status == SnapshotStatusOpen {
			return ErrSnapshotAlreadyOpen
		}
	}
	clone := *snap
	r.snapshots[snap.ID] = &clone
	return nil
}

func (r *memoryDailyRepo) GetSnapshot(ctx context.Context, businessID, id uuid.UUID) (*Snapshot, error) {
	snap, ok := r.snapshots[id]
	if !ok || snap.BusinessID != businessID {
		return nil, shared.ErrNotFound
	}
	clone := *snap
	return &clone, nil
}

func (r *memoryDailyRepo) OpenSnapshotForRegister(ctx context.Context, businessID, registerID uuid.UUID) (*Snapshot, error) {
	for _, snap := range r.snapshots {
		if snap.BusinessID == businessID && snap.CashRegisterID == registerID && snap.Status == SnapshotStatusOpen {
			clone := *snap
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryDailyRepo) LastClosedSnapshot(ctx context.Context, businessID, registerID uuid.UUID) (*Snapshot, error) {
	for i := len(r.closeOrder) - 1; i >= 0; i-- {
		snap := r.snapshots[r.closeOrder[i]]
		if snap.BusinessID == businessID && snap.CashRegisterID == registerID {
			clone := *snap
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryDailyRepo) RegisterActive(ctx context.Context, businessID, registerID uuid.UUID) (bool, error) {
	active, ok := r.registers[registerID]
	if !ok {
		return false, shared.ErrNotFound
	}
	return active, nil
}

func (r *memoryDailyRepo) CloseSnapshot(ctx context.Context, businessID, id uuid.UUID, closing, differences []BalanceLine, stamp shared.AuditStamp) (*Snapshot, error) {
	snap, ok := r.snapshots[id]
	if !ok || snap.BusinessID != businessID {
		return nil, shared.ErrNotFound
	}
	if snap.Status != SnapshotStatusOpen {
		return nil, ErrSnapshotClosed
	}
	snap.Status = SnapshotStatusClosed
	snap.ClosingBalances = closing
	snap.Differences = differences
	snap.Closed = &stamp
	r.closeOrder = append(r.closeOrder, id)
	clone := *snap
	return &clone, nil
}

func (r *memoryDailyRepo) InsertTransaction(ctx context.Context, entry *Transaction) error {
	snap, ok := r.snapshots[entry.DailyCashSnapshotID]
	if !ok || snap.BusinessID != entry.BusinessID {
		return shared.ErrNotFound
	}
	if snap.Status != SnapshotStatusOpen {
		return ErrSnapshotClosed
	}
	entry.CashRegisterID = snap.CashRegisterID
	r.transactions[entry.DailyCashSnapshotID] = append(r.transactions[entry.DailyCashSnapshotID], *entry)
	return nil
}

func (r *memoryDailyRepo) ListTransactions(ctx context.Context, businessID, snapshotID uuid.UUID) ([]Transaction, error) {
	return r.transactions[snapshotID], nil
}

type fakeCatalog struct {
	accounts []catalog.FundingAccount
	methods  []catalog.PaymentMethod
}

func (f *fakeCatalog) ActiveFundingAccounts(ctx context.Context, businessID uuid.UUID) ([]catalog.FundingAccount, error) {
	return f.accounts, nil
}

func (f *fakeCatalog) ActivePaymentMethods(ctx context.Context, businessID uuid.UUID) ([]catalog.PaymentMethod, error) {
	return f.methods, nil
}

func (f *fakeCatalog) PaymentMethodByID(ctx context.Context, businessID, id uuid.UUID) (*catalog.PaymentMethod, error) {
	for i := range f.methods {
		if f.methods[i].ID == id {
			return &f.methods[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

var cashAccountID = uuid.New()

func cashLine(amount float64) BalanceLine {
	return BalanceLine{
		AccountID:   cashAccountID,
		AccountName: "Efectivo",
		AccountCode: catalog.CashAccountCode,
		Amount:      decimal.NewFromFloat(amount),
	}
}

func bankLine(amount float64) BalanceLine {
	return BalanceLine{
		AccountID:   uuid.New(),
		AccountName: "Banco Galicia",
		AccountCode: "BANCO",
		Amount:      decimal.NewFromFloat(amount),
	}
}

type fixture struct {
	repo       *memoryDailyRepo
	svc        *Service
	ctx        context.Context
	registerID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryDailyRepo()
	reader := &fakeCatalog{accounts: []catalog.FundingAccount{{
		ID:       cashAccountID,
		Name:     "Efectivo",
		Code:     catalog.CashAccountCode,
		IsActive: true,
	}}}
	svc := NewService(repo, reader)
	businessID := uuid.New()
	registerID := uuid.New()
	repo.registers[registerID] = true
	ctx := shared.ContextWithIdentity(context.Background(), shared.Identity{
		ActorID:    uuid.New(),
		ActorName:  "Marta Luna",
		BusinessID: businessID,
	})
	return &fixture{repo: repo, svc: svc, ctx: ctx, registerID: registerID}
}

func TestOpenSnapshotExplicitBalances(t *testing.T) {
	f := newFixture(t)

	snap, err := f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{cashLine(1000), bankLine(500)},
	})
	require.NoError(t, err)
	require.Equal(t, SnapshotStatusOpen, snap.Status)
	require.True(t, snap.CashOpening().Equal(decimal.NewFromInt(1000)))
}

func TestOpenSnapshotRequiresCashAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{bankLine(500)},
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "openingBalances")
}

func TestOpenSnapshotRejectsNegativeAmounts(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{cashLine(-5)},
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestOpenSnapshotInactiveRegister(t *testing.T) {
	f := newFixture(t)
	f.repo.registers[f.registerID] = false

	_, err := f.svc.Open(f.ctx, OpenInput{CashRegisterID: f.registerID})
	require.ErrorIs(t, err, ErrRegisterInactive)
}

func TestSecondOpenSameRegisterRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{cashLine(100)},
	})
	require.NoError(t, err)

	_, err = f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{cashLine(100)},
	})
	require.ErrorIs(t, err, ErrSnapshotAlreadyOpen)
}

func TestCarryForwardCashOnly(t *testing.T) {
	f := newFixture(t)

	snap, err := f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{cashLine(1000)},
	})
	require.NoError(t, err)

	_, err = f.svc.Close(f.ctx, CloseInput{
		SnapshotID:      snap.ID,
		ClosingBalances: []BalanceLine{cashLine(1350), bankLine(900)},
	})
	require.NoError(t, err)

	next, err := f.svc.Open(f.ctx, OpenInput{CashRegisterID: f.registerID})
	require.NoError(t, err)
	require.Len(t, next.OpeningBalances, 1)
	require.Equal(t, catalog.CashAccountCode, next.OpeningBalances[0].AccountCode)
	require.True(t, next.OpeningBalances[0].Amount.Equal(decimal.NewFromInt(1350)))
}

func TestCarryForwardZeroWithoutHistory(t *testing.T) {
	f := newFixture(t)

	snap, err := f.svc.Open(f.ctx, OpenInput{CashRegisterID: f.registerID})
	require.NoError(t, err)
	require.Len(t, snap.OpeningBalances, 1)
	require.True(t, snap.OpeningBalances[0].Amount.IsZero())
}

func TestRecordTypeReferenceMatrix(t *testing.T) {
	f := newFixture(t)
	snap, err := f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{cashLine(100)},
	})
	require.NoError(t, err)

	saleID := uuid.New()
	debtID := uuid.New()
	walletID := uuid.New()
	amount := decimal.NewFromInt(10)

	cases := []struct {
		name    string
		input   RecordInput
		wantErr string
	}{
		{"sale without saleId", RecordInput{SnapshotID: snap.ID, Type: TypeSale, Amount: amount}, "saleId"},
		{"sale with debtId", RecordInput{SnapshotID: snap.ID, Type: TypeSale, Amount: amount, SaleID: &saleID, DebtID: &debtID}, "debtId"},
		{"sale with walletId", RecordInput{SnapshotID: snap.ID, Type: TypeSale, Amount: amount, SaleID: &saleID, WalletID: &walletID}, "walletId"},
		{"debt_payment without debtId", RecordInput{SnapshotID: snap.ID, Type: TypeDebtPayment, Amount: amount}, "debtId"},
		{"debt_payment with saleId", RecordInput{SnapshotID: snap.ID, Type: TypeDebtPayment, Amount: amount, DebtID: &debtID, SaleID: &saleID}, "saleId"},
		{"extract without walletId", RecordInput{SnapshotID: snap.ID, Type: TypeExtract, Amount: amount}, "walletId"},
		{"inject with saleId", RecordInput{SnapshotID: snap.ID, Type: TypeInject, Amount: amount, WalletID: &walletID, SaleID: &saleID}, "saleId"},
		{"unknown type", RecordInput{SnapshotID: snap.ID, Type: "transfer", Amount: amount}, "type"},
		{"non-positive amount", RecordInput{SnapshotID: snap.ID, Type: TypeSale, Amount: decimal.Zero, SaleID: &saleID}, "amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Record(f.ctx, tc.input)
			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Contains(t, verr.Fields, tc.wantErr)
		})
	}

	// Valid entries for each type.
	_, err = f.svc.Record(f.ctx, RecordInput{SnapshotID: snap.ID, Type: TypeSale, Amount: amount, SaleID: &saleID})
	require.NoError(t, err)
	_, err = f.svc.Record(f.ctx, RecordInput{SnapshotID: snap.ID, Type: TypeDebtPayment, Amount: amount, DebtID: &debtID})
	require.NoError(t, err)
	_, err = f.svc.Record(f.ctx, RecordInput{SnapshotID: snap.ID, Type: TypeExtract, Amount: amount, WalletID: &walletID})
	require.NoError(t, err)
	_, err = f.svc.Record(f.ctx, RecordInput{SnapshotID: snap.ID, Type: TypeInject, Amount: amount, WalletID: &walletID})
	require.NoError(t, err)
}

func TestRecordAgainstClosedSnapshot(t *testing.T) {
	f := newFixture(t)
	snap, err := f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{cashLine(100)},
	})
	require.NoError(t, err)

	saleID := uuid.New()
	_, err = f.svc.Record(f.ctx, RecordInput{SnapshotID: snap.ID, Type: TypeSale, Amount: decimal.NewFromInt(50), SaleID: &saleID})
	require.NoError(t, err)

	_, err = f.svc.Close(f.ctx, CloseInput{
		SnapshotID:      snap.ID,
		ClosingBalances: []BalanceLine{cashLine(150)},
	})
	require.NoError(t, err)

	before := len(f.repo.transactions[snap.ID])
	_, err = f.svc.Record(f.ctx, RecordInput{SnapshotID: snap.ID, Type: TypeSale, Amount: decimal.NewFromInt(25), SaleID: &saleID})
	require.ErrorIs(t, err, ErrSnapshotClosed)
	require.ErrorIs(t, err, shared.ErrStateConflict)
	require.Len(t, f.repo.transactions[snap.ID], before)
}

func TestCloseTwiceRejected(t *testing.T) {
	f := newFixture(t)
	snap, err := f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{cashLine(100)},
	})
	require.NoError(t, err)

	_, err = f.svc.Close(f.ctx, CloseInput{SnapshotID: snap.ID, ClosingBalances: []BalanceLine{cashLine(100)}})
	require.NoError(t, err)

	_, err = f.svc.Close(f.ctx, CloseInput{SnapshotID: snap.ID, ClosingBalances: []BalanceLine{cashLine(100)}})
	require.ErrorIs(t, err, ErrSnapshotClosed)
}

func TestCloseRequiresBalances(t *testing.T) {
	f := newFixture(t)
	snap, err := f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{cashLine(100)},
	})
	require.NoError(t, err)

	_, err = f.svc.Close(f.ctx, CloseInput{SnapshotID: snap.ID})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "closingBalances")
}

func TestCashBalanceFold(t *testing.T) {
	f := newFixture(t)
	snap, err := f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{cashLine(1000)},
	})
	require.NoError(t, err)

	saleID := uuid.New()
	walletID := uuid.New()
	_, err = f.svc.Record(f.ctx, RecordInput{SnapshotID: snap.ID, Type: TypeSale, Amount: decimal.NewFromInt(250), SaleID: &saleID})
	require.NoError(t, err)
	_, err = f.svc.Record(f.ctx, RecordInput{SnapshotID: snap.ID, Type: TypeExtract, Amount: decimal.NewFromInt(100), WalletID: &walletID})
	require.NoError(t, err)

	balance, err := f.svc.CashBalance(f.ctx, snap.ID)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(1150)), "got %s", balance)
}

func TestDifferencesMayBeNegative(t *testing.T) {
	f := newFixture(t)
	snap, err := f.svc.Open(f.ctx, OpenInput{
		CashRegisterID:  f.registerID,
		OpeningBalances: []BalanceLine{cashLine(100)},
	})
	require.NoError(t, err)

	diff := cashLine(0)
	diff.Amount = decimal.NewFromFloat(-12.5)
	closed, err := f.svc.Close(f.ctx, CloseInput{
		SnapshotID:      snap.ID,
		ClosingBalances: []BalanceLine{cashLine(87.5)},
		Differences:     []BalanceLine{diff},
	})
	require.NoError(t, err)
	require.Len(t, closed.Differences, 1)
	require.True(t, closed.Differences[0].Amount.IsNegative())
}
