package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucero-pos/lucero/internal/catalog"
	"github.com/lucero-pos/lucero/internal/dailycash"
	"github.com/lucero-pos/lucero/internal/debt"
	"github.com/lucero-pos/lucero/internal/globalcash"
	"github.com/lucero-pos/lucero/internal/settlement"
	"github.com/lucero-pos/lucero/internal/shared"
	"github.com/lucero-pos/lucero/internal/watch"
)

// SaleStore persists the primary sale record. Sales live outside the ledger
// core; the engine only gates and routes around them.
type SaleStore interface {
	CreateSale(ctx context.Context, sale *Sale) error
}

// CashLedger is the daily tier surface the engine routes cash lines through.
type CashLedger interface {
	Get(ctx context.Context, id uuid.UUID) (*dailycash.Snapshot, error)
	Record(ctx context.Context, in dailycash.RecordInput) (*dailycash.Transaction, error)
}

// SettlementBook opens pending settlements for card lines.
type SettlementBook interface {
	Create(ctx context.Context, in settlement.CreateInput) (*settlement.Settlement, error)
}

// WalletLedger is the weekly tier surface the engine routes everything else
// through.
type WalletLedger interface {
	EnsureCurrentWeek(ctx context.Context) (*globalcash.Period, error)
	RecordWallet(ctx context.Context, in globalcash.RecordWalletInput) (*globalcash.WalletTransaction, error)
}

// DebtBook opens and pays debts.
type DebtBook interface {
	Get(ctx context.Context, id uuid.UUID) (*debt.Debt, error)
	CreateFromSale(ctx context.Context, in debt.CreateInput) (*debt.Debt, error)
	CreateFromPurchaseInvoice(ctx context.Context, in debt.CreateInput) (*debt.Debt, error)
	RecordPayment(ctx context.Context, in debt.PaymentInput) (*debt.Debt, error)
}

// Notifier broadcasts ledger change events to watch subscribers. A nil
// notifier disables publishing.
type Notifier interface {
	Publish(ctx context.Context, event watch.Event) error
}

// Engine is the business rules orchestrator. Given a sale or payment event it
// decides which ledgers to touch and in what order. Cross-entity writes are
// deliberately not wrapped in one transaction: once the primary record
// commits, each routed leg stands alone and a failed leg surfaces as a
// warning for out-of-band reconciliation.
type Engine struct {
	logger      *slog.Logger
	catalog     catalog.Reader
	sales       SaleStore
	cash        CashLedger
	settlements SettlementBook
	wallet      WalletLedger
	debts       DebtBook
	notifier    Notifier
	now         func() time.Time
}

// Params collects the engine's collaborators.
type Params struct {
	Logger      *slog.Logger
	Catalog     catalog.Reader
	Sales       SaleStore
	Cash        CashLedger
	Settlements SettlementBook
	Wallet      WalletLedger
	Debts       DebtBook
	Notifier    Notifier
}

// New builds an Engine.
func New(p Params) *Engine {
	return &Engine{
		logger:      p.Logger,
		catalog:     p.Catalog,
		sales:       p.Sales,
		cash:        p.Cash,
		settlements: p.Settlements,
		wallet:      p.Wallet,
		debts:       p.Debts,
		notifier:    p.Notifier,
		now:         time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// ProcessSale runs the central sale orchestration:
//
//  1. a partially paid sale must name a client,
//  2. the target snapshot must be open,
//  3. the sale record commits,
//  4. each payment line routes by method class to the daily cash ledger, a
//     pending settlement or the wallet,
//  5. an unpaid remainder above tolerance opens a client debt.
//
// Steps 4 and 5 never fail the call once step 3 succeeded; their failures
// accumulate as warnings.
func (e *Engine) ProcessSale(ctx context.Context, in ProcessSaleInput) (*ProcessSaleResult, error) {
	actor := shared.IdentityFromContext(ctx)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	snap, err := e.cash.Get(ctx, in.DailyCashSnapshotID)
	if err != nil {
		return nil, notFoundAs(err, "dailyCashSnapshotId")
	}
	if snap.Status != dailycash.SnapshotStatusOpen {
		return nil, dailycash.ErrSnapshotClosed
	}

	sale := &Sale{
		ID:                  uuid.New(),
		BusinessID:          actor.BusinessID,
		ClientID:            in.ClientID,
		DailyCashSnapshotID: in.DailyCashSnapshotID,
		CashRegisterID:      in.CashRegisterID,
		AmountTotal:         in.AmountTotal,
		IsPaidInFull:        in.IsPaidInFull,
		Created:             shared.StampFrom(actor, e.now()),
	}
	if err := e.sales.CreateSale(ctx, sale); err != nil {
		return nil, err
	}
	e.publish(ctx, "sale", sale.ID.String(), "created")

	result := &ProcessSaleResult{Sale: sale}
	for i, line := range in.PaymentLines {
		if err := e.routeSaleLine(ctx, sale, line, result); err != nil {
			warning := fmt.Sprintf("payment line %d (method %s) failed: %v", i, line.PaymentMethodID, err)
			result.Warnings = append(result.Warnings, warning)
			e.logger.Warn("sale leg failed",
				slog.String("sale_id", sale.ID.String()),
				slog.Int("line", i),
				slog.Any("error", err))
		}
	}

	if !in.IsPaidInFull && in.ClientID != nil {
		paid := decimal.Zero
		for _, line := range in.PaymentLines {
			paid = paid.Add(line.Amount)
		}
		remaining := in.AmountTotal.Sub(paid)
		if remaining.GreaterThan(shared.AmountTolerance) {
			d, err := e.debts.CreateFromSale(ctx, debt.CreateInput{
				ClientID:            in.ClientID,
				SaleID:              &sale.ID,
				DailyCashSnapshotID: &in.DailyCashSnapshotID,
				OriginalAmount:      remaining,
			})
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("debt creation failed: %v", err))
				e.logger.Warn("sale debt leg failed", slog.String("sale_id", sale.ID.String()), slog.Any("error", err))
			} else {
				result.Debt = d
				e.publish(ctx, "debt", d.ID.String(), "created")
			}
		}
	}
	return result, nil
}

func (e *Engine) routeSaleLine(ctx context.Context, sale *Sale, line PaymentLine, result *ProcessSaleResult) error {
	actor := shared.IdentityFromContext(ctx)
	method, err := e.catalog.PaymentMethodByID(ctx, actor.BusinessID, line.PaymentMethodID)
	if err != nil {
		return err
	}
	switch method.Class {
	case catalog.ClassCash:
		entry, err := e.cash.Record(ctx, dailycash.RecordInput{
			SnapshotID: sale.DailyCashSnapshotID,
			Type:       dailycash.TypeSale,
			Amount:     line.Amount,
			SaleID:     &sale.ID,
		})
		if err != nil {
			return err
		}
		result.CashTransactions = append(result.CashTransactions, entry.ID)
		e.publish(ctx, "daily_cash_transaction", entry.ID.String(), "created")
	case catalog.ClassCardProvider:
		s, err := e.settlements.Create(ctx, settlement.CreateInput{
			SaleID:              sale.ID,
			DailyCashSnapshotID: sale.DailyCashSnapshotID,
			CashRegisterID:      sale.CashRegisterID,
			PaymentMethodID:     method.ID,
			AmountTotal:         line.Amount,
			AmountFee:           line.AmountFee,
			PercentageFee:       line.PercentageFee,
		})
		if err != nil {
			return err
		}
		result.Settlements = append(result.Settlements, s)
		e.publish(ctx, "settlement", s.ID.String(), "created")
	default:
		period, err := e.wallet.EnsureCurrentWeek(ctx)
		if err != nil {
			return err
		}
		entry, err := e.wallet.RecordWallet(ctx, globalcash.RecordWalletInput{
			GlobalCashID:    period.ID,
			Type:            globalcash.WalletIncome,
			Amount:          line.Amount,
			AccountTypeID:   line.AccountTypeID,
			PaymentMethodID: method.ID,
			SaleID:          &sale.ID,
		})
		if err != nil {
			return err
		}
		result.WalletTransactions = append(result.WalletTransactions, entry)
		e.publish(ctx, "wallet_transaction", entry.ID.String(), "created")
	}
	return nil
}

// ProcessDebtPayment applies one payment event against a debt: a wallet
// income entry always, a daily cash entry additionally when a customer debt
// is paid in cash, then the debt's own payment bookkeeping. The debt update
// is the primary write here and runs first; the ledger legs that follow
// accumulate warnings on failure.
func (e *Engine) ProcessDebtPayment(ctx context.Context, in ProcessDebtPaymentInput) (*ProcessDebtPaymentResult, error) {
	fields := shared.FieldErrors{}
	if in.DebtID == uuid.Nil {
		fields.Add("debtId", "is required")
	}
	if !in.Amount.IsPositive() {
		fields.Add("amount", "must be greater than zero")
	}
	if in.PaymentMethodID == uuid.Nil {
		fields.Add("paymentMethodId", "is required")
	}
	if err := fields.AsError(); err != nil {
		return nil, err
	}

	actor := shared.IdentityFromContext(ctx)
	method, err := e.catalog.PaymentMethodByID(ctx, actor.BusinessID, in.PaymentMethodID)
	if err != nil {
		return nil, notFoundAs(err, "paymentMethodId")
	}

	current, err := e.debts.Get(ctx, in.DebtID)
	if err != nil {
		return nil, notFoundAs(err, "debtId")
	}
	if current.Status != debt.StatusActive {
		return nil, debt.ErrNotActive
	}
	if shared.AmountExceeds(in.Amount, current.RemainingAmount) {
		return nil, shared.NewValidationError("amount", "exceeds the remaining debt amount")
	}
	cashPayment := method.Class == catalog.ClassCash && current.IsCustomer()
	if cashPayment && in.DailyCashSnapshotID == nil {
		return nil, shared.NewValidationError("dailyCashSnapshotId", "is required for cash payments of customer debts")
	}

	updated, err := e.debts.RecordPayment(ctx, debt.PaymentInput{
		DebtID:              in.DebtID,
		Amount:              in.Amount,
		DailyCashSnapshotID: in.DailyCashSnapshotID,
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, "debt", updated.ID.String(), "payment")

	result := &ProcessDebtPaymentResult{Debt: updated}

	period, err := e.wallet.EnsureCurrentWeek(ctx)
	if err == nil {
		var entry *globalcash.WalletTransaction
		entry, err = e.wallet.RecordWallet(ctx, globalcash.RecordWalletInput{
			GlobalCashID:    period.ID,
			Type:            globalcash.WalletIncome,
			Amount:          in.Amount,
			AccountTypeID:   in.AccountTypeID,
			PaymentMethodID: method.ID,
			DebtID:          &in.DebtID,
		})
		if err == nil {
			result.WalletTransaction = entry
			e.publish(ctx, "wallet_transaction", entry.ID.String(), "created")
		}
	}
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("wallet leg failed: %v", err))
		e.logger.Warn("debt payment wallet leg failed", slog.String("debt_id", in.DebtID.String()), slog.Any("error", err))
	}

	if cashPayment {
		entry, err := e.cash.Record(ctx, dailycash.RecordInput{
			SnapshotID: *in.DailyCashSnapshotID,
			Type:       dailycash.TypeDebtPayment,
			Amount:     in.Amount,
			DebtID:     &in.DebtID,
		})
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("daily cash leg failed: %v", err))
			e.logger.Warn("debt payment cash leg failed", slog.String("debt_id", in.DebtID.String()), slog.Any("error", err))
		} else {
			id := entry.ID
			result.CashTransactionID = &id
			e.publish(ctx, "daily_cash_transaction", id.String(), "created")
		}
	}
	return result, nil
}

// ProcessPurchaseInvoice mirrors the sale flow on the outcome side: each
// payment line becomes a wallet outcome entry, and an unpaid remainder above
// tolerance opens a supplier debt. Leg failures accumulate as warnings.
func (e *Engine) ProcessPurchaseInvoice(ctx context.Context, in ProcessPurchaseInvoiceInput) (*ProcessPurchaseInvoiceResult, error) {
	actor := shared.IdentityFromContext(ctx)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	result := &ProcessPurchaseInvoiceResult{}
	for i, line := range in.PaymentLines {
		method, err := e.catalog.PaymentMethodByID(ctx, actor.BusinessID, line.PaymentMethodID)
		if err == nil {
			var period *globalcash.Period
			period, err = e.wallet.EnsureCurrentWeek(ctx)
			if err == nil {
				var entry *globalcash.WalletTransaction
				entry, err = e.wallet.RecordWallet(ctx, globalcash.RecordWalletInput{
					GlobalCashID:      period.ID,
					Type:              globalcash.WalletOutcome,
					Amount:            line.Amount,
					AccountTypeID:     line.AccountTypeID,
					PaymentMethodID:   method.ID,
					PurchaseInvoiceID: &in.PurchaseInvoiceID,
				})
				if err == nil {
					result.WalletTransactions = append(result.WalletTransactions, entry)
					e.publish(ctx, "wallet_transaction", entry.ID.String(), "created")
				}
			}
		}
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("payment line %d failed: %v", i, err))
			e.logger.Warn("invoice leg failed",
				slog.String("purchase_invoice_id", in.PurchaseInvoiceID.String()),
				slog.Int("line", i),
				slog.Any("error", err))
		}
	}

	if !in.IsPaidInFull {
		paid := decimal.Zero
		for _, line := range in.PaymentLines {
			paid = paid.Add(line.Amount)
		}
		remaining := in.AmountTotal.Sub(paid)
		if remaining.GreaterThan(shared.AmountTolerance) {
			d, err := e.debts.CreateFromPurchaseInvoice(ctx, debt.CreateInput{
				SupplierID:        &in.SupplierID,
				PurchaseInvoiceID: &in.PurchaseInvoiceID,
				OriginalAmount:    remaining,
			})
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("supplier debt creation failed: %v", err))
				e.logger.Warn("invoice debt leg failed",
					slog.String("purchase_invoice_id", in.PurchaseInvoiceID.String()),
					slog.Any("error", err))
			} else {
				result.Debt = d
			}
		}
	}
	return result, nil
}

// publish emits a change event for one successful write. Publishing is best
// effort and never affects the caller's result.
func (e *Engine) publish(ctx context.Context, entity, entityID, action string) {
	if e.notifier == nil {
		return
	}
	actor := shared.IdentityFromContext(ctx)
	event := watch.Event{
		Entity:     entity,
		BusinessID: actor.BusinessID,
		EntityID:   entityID,
		Action:     action,
		At:         e.now(),
	}
	if err := e.notifier.Publish(ctx, event); err != nil {
		e.logger.Warn("event publish failed",
			slog.String("entity", entity),
			slog.String("entity_id", entityID),
			slog.Any("error", err))
	}
}

// notFoundAs maps missing references to validation errors at the engine
// boundary when a caller-supplied id does not resolve.
func notFoundAs(err error, field string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewValidationError(field, "does not exist")
	}
	return err
}
