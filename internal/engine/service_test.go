package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lucero-pos/lucero/internal/catalog"
	"github.com/lucero-pos/lucero/internal/dailycash"
	"github.com/lucero-pos/lucero/internal/debt"
	"github.com/lucero-pos/lucero/internal/globalcash"
	"github.com/lucero-pos/lucero/internal/settlement"
	"github.com/lucero-pos/lucero/internal/shared"
	"github.com/lucero-pos/lucero/internal/watch"
)

type fakeNotifier struct {
	events []watch.Event
}

func (n *fakeNotifier) Publish(ctx context.Context, event watch.Event) error {
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) entities() []string {
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Entity)
	}
	return out
}

type fakeCatalog struct {
	methods []catalog.PaymentMethod
}

func (c *fakeCatalog) ActiveFundingAccounts(ctx context.Context, businessID uuid.UUID) ([]catalog.FundingAccount, error) {
	return nil, nil
}

func (c *fakeCatalog) ActivePaymentMethods(ctx context.Context, businessID uuid.UUID) ([]catalog.PaymentMethod, error) {
	return c.methods, nil
}

func (c *fakeCatalog) PaymentMethodByID(ctx context.Context, businessID, id uuid.UUID) (*catalog.PaymentMethod, error) {
	for i := range c.methods {
		if c.methods[i].ID == id {
			return &c.methods[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

type fakeSales struct {
	created []*Sale
	fail    error
}

func (s *fakeSales) CreateSale(ctx context.Context, sale *Sale) error {
	if s.fail != nil {
		return s.fail
	}
	s.created = append(s.created, sale)
	return nil
}

type fakeCash struct {
	snapshots  map[uuid.UUID]*dailycash.Snapshot
	records    []dailycash.RecordInput
	failRecord error
}

func (c *fakeCash) Get(ctx context.Context, id uuid.UUID) (*dailycash.Snapshot, error) {
	snap, ok := c.snapshots[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return snap, nil
}

func (c *fakeCash) Record(ctx context.Context, in dailycash.RecordInput) (*dailycash.Transaction, error) {
	if c.failRecord != nil {
		return nil, c.failRecord
	}
	snap, ok := c.snapshots[in.SnapshotID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if snap.Status != dailycash.SnapshotStatusOpen {
		return nil, dailycash.ErrSnapshotClosed
	}
	c.records = append(c.records, in)
	return &dailycash.Transaction{
		ID:                  uuid.New(),
		DailyCashSnapshotID: in.SnapshotID,
		Type:                in.Type,
		Amount:              in.Amount,
		SaleID:              in.SaleID,
		DebtID:              in.DebtID,
		WalletID:            in.WalletID,
	}, nil
}

type fakeSettlements struct {
	created []*settlement.Settlement
	fail    error
}

func (s *fakeSettlements) Create(ctx context.Context, in settlement.CreateInput) (*settlement.Settlement, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	out := &settlement.Settlement{
		ID:                  uuid.New(),
		SaleID:              in.SaleID,
		DailyCashSnapshotID: in.DailyCashSnapshotID,
		CashRegisterID:      in.CashRegisterID,
		PaymentMethodID:     in.PaymentMethodID,
		Status:              settlement.StatusPending,
		AmountTotal:         in.AmountTotal,
		AmountFee:           in.AmountFee,
		PercentageFee:       in.PercentageFee,
	}
	s.created = append(s.created, out)
	return out, nil
}

type fakeWallet struct {
	period  *globalcash.Period
	entries []*globalcash.WalletTransaction
	fail    error
}

func (w *fakeWallet) EnsureCurrentWeek(ctx context.Context) (*globalcash.Period, error) {
	if w.period == nil {
		w.period = &globalcash.Period{ID: uuid.New(), Status: globalcash.PeriodStatusOpen}
	}
	return w.period, nil
}

func (w *fakeWallet) RecordWallet(ctx context.Context, in globalcash.RecordWalletInput) (*globalcash.WalletTransaction, error) {
	if w.fail != nil {
		return nil, w.fail
	}
	entry := &globalcash.WalletTransaction{
		ID:                uuid.New(),
		GlobalCashID:      in.GlobalCashID,
		Type:              in.Type,
		Status:            globalcash.WalletStatusPaid,
		Amount:            in.Amount,
		AccountTypeID:     in.AccountTypeID,
		PaymentMethodID:   in.PaymentMethodID,
		SaleID:            in.SaleID,
		DebtID:            in.DebtID,
		PurchaseInvoiceID: in.PurchaseInvoiceID,
		SupplierID:        in.SupplierID,
	}
	w.entries = append(w.entries, entry)
	return entry, nil
}

type fakeDebts struct {
	items map[uuid.UUID]*debt.Debt
	fail  error
}

func newFakeDebts() *fakeDebts {
	return &fakeDebts{items: make(map[uuid.UUID]*debt.Debt)}
}

func (d *fakeDebts) Get(ctx context.Context, id uuid.UUID) (*debt.Debt, error) {
	item, ok := d.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return item, nil
}

func (d *fakeDebts) CreateFromSale(ctx context.Context, in debt.CreateInput) (*debt.Debt, error) {
	return d.create(in, debt.OriginSale)
}

func (d *fakeDebts) CreateFromPurchaseInvoice(ctx context.Context, in debt.CreateInput) (*debt.Debt, error) {
	return d.create(in, debt.OriginPurchaseInvoice)
}

func (d *fakeDebts) create(in debt.CreateInput, origin debt.OriginType) (*debt.Debt, error) {
	if d.fail != nil {
		return nil, d.fail
	}
	item := &debt.Debt{
		ID:                  uuid.New(),
		ClientID:            in.ClientID,
		SupplierID:          in.SupplierID,
		DailyCashSnapshotID: in.DailyCashSnapshotID,
		OriginType:          origin,
		SaleID:              in.SaleID,
		PurchaseInvoiceID:   in.PurchaseInvoiceID,
		OriginalAmount:      in.OriginalAmount,
		PaidAmount:          decimal.Zero,
		RemainingAmount:     in.OriginalAmount,
		Status:              debt.StatusActive,
	}
	d.items[item.ID] = item
	return item, nil
}

func (d *fakeDebts) RecordPayment(ctx context.Context, in debt.PaymentInput) (*debt.Debt, error) {
	item, ok := d.items[in.DebtID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if item.Status != debt.StatusActive {
		return nil, debt.ErrNotActive
	}
	item.PaidAmount = item.PaidAmount.Add(in.Amount)
	item.RemainingAmount = item.OriginalAmount.Sub(item.PaidAmount)
	if shared.IsZeroAmount(item.RemainingAmount) {
		item.Status = debt.StatusPaid
	}
	return item, nil
}

type engineFixture struct {
	engine      *Engine
	ctx         context.Context
	sales       *fakeSales
	cash        *fakeCash
	settlements *fakeSettlements
	wallet      *fakeWallet
	debts       *fakeDebts
	notifier    *fakeNotifier
	snapshotID  uuid.UUID
	registerID  uuid.UUID
	cashMethod  catalog.PaymentMethod
	cardMethod  catalog.PaymentMethod
	otherMethod catalog.PaymentMethod
	accountID   uuid.UUID
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		sales:       &fakeSales{},
		settlements: &fakeSettlements{},
		wallet:      &fakeWallet{},
		debts:       newFakeDebts(),
		notifier:    &fakeNotifier{},
		snapshotID:  uuid.New(),
		registerID:  uuid.New(),
		accountID:   uuid.New(),
		cashMethod:  catalog.PaymentMethod{ID: uuid.New(), Name: "Efectivo", Code: "EFECTIVO", Class: catalog.ClassCash, IsActive: true},
		cardMethod:  catalog.PaymentMethod{ID: uuid.New(), Name: "Tarjeta Visa", Code: "VISA", Class: catalog.ClassCardProvider, IsActive: true},
		otherMethod: catalog.PaymentMethod{ID: uuid.New(), Name: "Transferencia", Code: "TRANSFER", Class: catalog.ClassOther, IsActive: true},
	}
	f.cash = &fakeCash{snapshots: map[uuid.UUID]*dailycash.Snapshot{
		f.snapshotID: {
			ID:             f.snapshotID,
			CashRegisterID: f.registerID,
			Status:         dailycash.SnapshotStatusOpen,
		},
	}}
	f.engine = New(Params{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Catalog:     &fakeCatalog{methods: []catalog.PaymentMethod{f.cashMethod, f.cardMethod, f.otherMethod}},
		Sales:       f.sales,
		Cash:        f.cash,
		Settlements: f.settlements,
		Wallet:      f.wallet,
		Debts:       f.debts,
		Notifier:    f.notifier,
	})
	f.engine.WithNow(func() time.Time {
		return time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	})
	f.ctx = shared.ContextWithIdentity(context.Background(), shared.Identity{
		ActorID:    uuid.New(),
		ActorName:  "Marta Luna",
		BusinessID: uuid.New(),
	})
	return f
}

func (f *engineFixture) saleInput() ProcessSaleInput {
	return ProcessSaleInput{
		DailyCashSnapshotID: f.snapshotID,
		CashRegisterID:      f.registerID,
		AmountTotal:         decimal.NewFromInt(500),
		IsPaidInFull:        true,
	}
}

func TestProcessSalePartialPaymentOpensDebt(t *testing.T) {
	f := newEngineFixture(t)
	clientID := uuid.New()

	in := f.saleInput()
	in.ClientID = &clientID
	in.IsPaidInFull = false
	in.PaymentLines = []PaymentLine{{
		PaymentMethodID: f.cashMethod.ID,
		Amount:          decimal.NewFromInt(300),
	}}

	result, err := f.engine.ProcessSale(f.ctx, in)
	require.NoError(t, err)
	require.Empty(t, result.Warnings)
	require.Len(t, f.sales.created, 1)
	require.Len(t, result.CashTransactions, 1)
	require.NotNil(t, result.Debt)
	require.True(t, result.Debt.OriginalAmount.Equal(decimal.NewFromInt(200)), "got %s", result.Debt.OriginalAmount)
	require.Equal(t, result.Sale.ID, *result.Debt.SaleID)
}

func TestProcessSaleCardLineOpensPendingSettlement(t *testing.T) {
	f := newEngineFixture(t)

	in := f.saleInput()
	in.AmountTotal = decimal.NewFromInt(400)
	in.PaymentLines = []PaymentLine{{
		PaymentMethodID: f.cardMethod.ID,
		Amount:          decimal.NewFromInt(400),
	}}

	result, err := f.engine.ProcessSale(f.ctx, in)
	require.NoError(t, err)
	require.Len(t, result.Settlements, 1)
	require.Equal(t, settlement.StatusPending, result.Settlements[0].Status)
	require.True(t, result.Settlements[0].AmountTotal.Equal(decimal.NewFromInt(400)))
	require.Empty(t, result.WalletTransactions)
	require.Empty(t, f.wallet.entries)
}

func TestProcessSaleOtherLineRecordsWalletIncome(t *testing.T) {
	f := newEngineFixture(t)

	in := f.saleInput()
	in.PaymentLines = []PaymentLine{{
		PaymentMethodID: f.otherMethod.ID,
		AccountTypeID:   f.accountID,
		Amount:          decimal.NewFromInt(500),
	}}

	result, err := f.engine.ProcessSale(f.ctx, in)
	require.NoError(t, err)
	require.Len(t, result.WalletTransactions, 1)
	require.Equal(t, globalcash.WalletIncome, result.WalletTransactions[0].Type)
	require.Equal(t, result.Sale.ID, *result.WalletTransactions[0].SaleID)
}

func TestProcessSaleUnpaidRequiresClient(t *testing.T) {
	f := newEngineFixture(t)

	in := f.saleInput()
	in.IsPaidInFull = false

	_, err := f.engine.ProcessSale(f.ctx, in)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "clientId")
	require.Empty(t, f.sales.created)
}

func TestProcessSaleRequiresOpenSnapshot(t *testing.T) {
	f := newEngineFixture(t)
	f.cash.snapshots[f.snapshotID].Status = dailycash.SnapshotStatusClosed

	_, err := f.engine.ProcessSale(f.ctx, f.saleInput())
	require.ErrorIs(t, err, dailycash.ErrSnapshotClosed)
	require.Empty(t, f.sales.created)
}

func TestProcessSaleLegFailureBecomesWarning(t *testing.T) {
	f := newEngineFixture(t)
	f.cash.failRecord = errors.New("daily ledger unavailable")

	in := f.saleInput()
	in.PaymentLines = []PaymentLine{{
		PaymentMethodID: f.cashMethod.ID,
		Amount:          decimal.NewFromInt(500),
	}}

	result, err := f.engine.ProcessSale(f.ctx, in)
	require.NoError(t, err)
	require.Len(t, f.sales.created, 1)
	require.Len(t, result.Warnings, 1)
	require.Contains(t, result.Warnings[0], "daily ledger unavailable")
	require.Empty(t, result.CashTransactions)
}

func TestProcessSaleTinyRemainderSkipsDebt(t *testing.T) {
	f := newEngineFixture(t)
	clientID := uuid.New()

	in := f.saleInput()
	in.ClientID = &clientID
	in.IsPaidInFull = false
	in.AmountTotal = decimal.NewFromFloat(500.005)
	in.PaymentLines = []PaymentLine{{
		PaymentMethodID: f.cashMethod.ID,
		Amount:          decimal.NewFromInt(500),
	}}

	result, err := f.engine.ProcessSale(f.ctx, in)
	require.NoError(t, err)
	require.Nil(t, result.Debt)
}

func TestProcessSalePublishesLegEvents(t *testing.T) {
	f := newEngineFixture(t)
	clientID := uuid.New()

	in := f.saleInput()
	in.ClientID = &clientID
	in.IsPaidInFull = false
	in.AmountTotal = decimal.NewFromInt(900)
	in.PaymentLines = []PaymentLine{
		{PaymentMethodID: f.cashMethod.ID, Amount: decimal.NewFromInt(300)},
		{PaymentMethodID: f.cardMethod.ID, Amount: decimal.NewFromInt(400)},
	}

	result, err := f.engine.ProcessSale(f.ctx, in)
	require.NoError(t, err)
	require.NotNil(t, result.Debt)
	require.Equal(t, []string{"sale", "daily_cash_transaction", "settlement", "debt"}, f.notifier.entities())
	for _, event := range f.notifier.events {
		require.Equal(t, shared.IdentityFromContext(f.ctx).BusinessID, event.BusinessID)
		require.Equal(t, "created", event.Action)
	}
}

func TestProcessDebtPaymentCashCustomer(t *testing.T) {
	f := newEngineFixture(t)
	clientID := uuid.New()
	d, err := f.debts.CreateFromSale(f.ctx, debt.CreateInput{
		ClientID:       &clientID,
		OriginalAmount: decimal.NewFromInt(150),
	})
	require.NoError(t, err)

	result, err := f.engine.ProcessDebtPayment(f.ctx, ProcessDebtPaymentInput{
		DebtID:              d.ID,
		Amount:              decimal.NewFromInt(150),
		PaymentMethodID:     f.cashMethod.ID,
		AccountTypeID:       f.accountID,
		DailyCashSnapshotID: &f.snapshotID,
	})
	require.NoError(t, err)
	require.Empty(t, result.Warnings)
	require.Equal(t, debt.StatusPaid, result.Debt.Status)
	require.NotNil(t, result.WalletTransaction)
	require.Equal(t, d.ID, *result.WalletTransaction.DebtID)
	require.NotNil(t, result.CashTransactionID)
	require.Len(t, f.cash.records, 1)
	require.Equal(t, dailycash.TypeDebtPayment, f.cash.records[0].Type)
}

func TestProcessDebtPaymentCashRequiresSnapshot(t *testing.T) {
	f := newEngineFixture(t)
	clientID := uuid.New()
	d, err := f.debts.CreateFromSale(f.ctx, debt.CreateInput{
		ClientID:       &clientID,
		OriginalAmount: decimal.NewFromInt(150),
	})
	require.NoError(t, err)

	_, err = f.engine.ProcessDebtPayment(f.ctx, ProcessDebtPaymentInput{
		DebtID:          d.ID,
		Amount:          decimal.NewFromInt(50),
		PaymentMethodID: f.cashMethod.ID,
		AccountTypeID:   f.accountID,
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "dailyCashSnapshotId")
}

func TestProcessDebtPaymentRejectsOverpayment(t *testing.T) {
	f := newEngineFixture(t)
	clientID := uuid.New()
	d, err := f.debts.CreateFromSale(f.ctx, debt.CreateInput{
		ClientID:       &clientID,
		OriginalAmount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	_, err = f.engine.ProcessDebtPayment(f.ctx, ProcessDebtPaymentInput{
		DebtID:          d.ID,
		Amount:          decimal.NewFromInt(120),
		PaymentMethodID: f.otherMethod.ID,
		AccountTypeID:   f.accountID,
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "amount")
	require.Empty(t, f.wallet.entries)
}

func TestProcessDebtPaymentNonCashSkipsDailyLedger(t *testing.T) {
	f := newEngineFixture(t)
	clientID := uuid.New()
	d, err := f.debts.CreateFromSale(f.ctx, debt.CreateInput{
		ClientID:       &clientID,
		OriginalAmount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	result, err := f.engine.ProcessDebtPayment(f.ctx, ProcessDebtPaymentInput{
		DebtID:          d.ID,
		Amount:          decimal.NewFromInt(40),
		PaymentMethodID: f.otherMethod.ID,
		AccountTypeID:   f.accountID,
	})
	require.NoError(t, err)
	require.Nil(t, result.CashTransactionID)
	require.Empty(t, f.cash.records)
	require.NotNil(t, result.WalletTransaction)
}

func TestProcessPurchaseInvoiceOutcomeAndSupplierDebt(t *testing.T) {
	f := newEngineFixture(t)
	supplierID := uuid.New()
	invoiceID := uuid.New()

	result, err := f.engine.ProcessPurchaseInvoice(f.ctx, ProcessPurchaseInvoiceInput{
		SupplierID:        supplierID,
		PurchaseInvoiceID: invoiceID,
		AmountTotal:       decimal.NewFromInt(1000),
		IsPaidInFull:      false,
		PaymentLines: []PaymentLine{{
			PaymentMethodID: f.otherMethod.ID,
			AccountTypeID:   f.accountID,
			Amount:          decimal.NewFromInt(600),
		}},
	})
	require.NoError(t, err)
	require.Len(t, result.WalletTransactions, 1)
	require.Equal(t, globalcash.WalletOutcome, result.WalletTransactions[0].Type)
	require.Equal(t, invoiceID, *result.WalletTransactions[0].PurchaseInvoiceID)
	require.NotNil(t, result.Debt)
	require.True(t, result.Debt.OriginalAmount.Equal(decimal.NewFromInt(400)))
	require.Equal(t, supplierID, *result.Debt.SupplierID)
	require.Nil(t, result.Debt.DailyCashSnapshotID)
}
