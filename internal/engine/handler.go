package engine

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lucero-pos/lucero/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the orchestration engine.
type Handler struct {
	logger *slog.Logger
	engine *Engine
}

// NewHandler constructs an engine handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine}
}

// MountRoutes registers engine routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.processSale)
	r.Post("/debt-payments", h.processDebtPayment)
	r.Post("/purchase-invoices", h.processPurchaseInvoice)
}

func (h *Handler) processSale(w http.ResponseWriter, r *http.Request) {
	var in ProcessSaleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.engine.ProcessSale(r.Context(), in)
	if err != nil {
		h.logger.Error("process sale", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, result, result.Warnings)
}

func (h *Handler) processDebtPayment(w http.ResponseWriter, r *http.Request) {
	var in ProcessDebtPaymentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.engine.ProcessDebtPayment(r.Context(), in)
	if err != nil {
		h.logger.Error("process debt payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, result, result.Warnings)
}

func (h *Handler) processPurchaseInvoice(w http.ResponseWriter, r *http.Request) {
	var in ProcessPurchaseInvoiceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.engine.ProcessPurchaseInvoice(r.Context(), in)
	if err != nil {
		h.logger.Error("process purchase invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, result, result.Warnings)
}
