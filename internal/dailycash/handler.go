package dailycash

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lucero-pos/lucero/internal/platform/httpx"
)

// Handler wires HTTP endpoints for daily cash.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a daily cash handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers daily cash routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/snapshots", h.open)
	r.Get("/snapshots/{id}", h.get)
	r.Post("/snapshots/{id}/close", h.close)
	r.Get("/snapshots/{id}/balance", h.balance)
	r.Get("/snapshots/{id}/expected-closing", h.expectedClosing)
	r.Get("/snapshots/{id}/transactions", h.listTransactions)
	r.Post("/transactions", h.record)
	r.Get("/registers/{id}/open-snapshot", h.openForRegister)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var in OpenInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.service.Open(r.Context(), in)
	if err != nil {
		h.logger.Error("open snapshot", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, snap, nil)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid snapshot id")
		return
	}
	snap, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, snap, nil)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid snapshot id")
		return
	}
	var in CloseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.SnapshotID = id
	snap, err := h.service.Close(r.Context(), in)
	if err != nil {
		h.logger.Error("close snapshot", slog.Any("error", err), slog.String("id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, snap, nil)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid snapshot id")
		return
	}
	balance, err := h.service.CashBalance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"cashBalance": balance}, nil)
}

func (h *Handler) expectedClosing(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid snapshot id")
		return
	}
	expected, err := h.service.ExpectedClosing(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"expectedCash": expected}, nil)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid snapshot id")
		return
	}
	entries, err := h.service.Transactions(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, entries, nil)
}

func (h *Handler) openForRegister(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid register id")
		return
	}
	snap, err := h.service.OpenForRegister(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, snap, nil)
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var in RecordInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Record(r.Context(), in)
	if err != nil {
		h.logger.Error("record daily transaction", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, entry, nil)
}
