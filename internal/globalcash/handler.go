package globalcash

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lucero-pos/lucero/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the weekly ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a global cash handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers global cash routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/periods", h.open)
	r.Get("/periods/current", h.current)
	r.Post("/periods/ensure-current", h.ensureCurrent)
	r.Post("/periods/check-previous", h.checkPrevious)
	r.Get("/periods/{id}", h.get)
	r.Post("/periods/{id}/close", h.close)
	r.Get("/periods/{id}/balances", h.balances)
	r.Get("/periods/{id}/wallet-transactions", h.listWallet)
	r.Post("/wallet-transactions", h.recordWallet)
	r.Post("/wallet-transactions/{id}/cancel", h.cancelWallet)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var in OpenInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.Open(r.Context(), in)
	if err != nil {
		h.logger.Error("open period", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, period, nil)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	period, err := h.service.Current(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, period, nil)
}

func (h *Handler) ensureCurrent(w http.ResponseWriter, r *http.Request) {
	period, err := h.service.EnsureCurrentWeek(r.Context())
	if err != nil {
		h.logger.Error("ensure current week", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, period, nil)
}

func (h *Handler) checkPrevious(w http.ResponseWriter, r *http.Request) {
	check, err := h.service.CheckPreviousWeek(r.Context())
	if err != nil {
		h.logger.Error("check previous week", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, check, check.Warnings)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, period, nil)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	var in CloseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.PeriodID = id
	period, err := h.service.Close(r.Context(), in)
	if err != nil {
		h.logger.Error("close period", slog.Any("error", err), slog.String("id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, period, nil)
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	lines, err := h.service.Balances(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, lines, nil)
}

func (h *Handler) listWallet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	entries, err := h.service.WalletTransactions(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, entries, nil)
}

func (h *Handler) recordWallet(w http.ResponseWriter, r *http.Request) {
	var in RecordWalletInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.RecordWallet(r.Context(), in)
	if err != nil {
		h.logger.Error("record wallet transaction", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, entry, nil)
}

func (h *Handler) cancelWallet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid wallet transaction id")
		return
	}
	entry, err := h.service.CancelWallet(r.Context(), id)
	if err != nil {
		h.logger.Error("cancel wallet transaction", slog.Any("error", err), slog.String("id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, entry, nil)
}
