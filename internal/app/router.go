package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/lucero-pos/lucero/internal/dailycash"
	"github.com/lucero-pos/lucero/internal/debt"
	"github.com/lucero-pos/lucero/internal/engine"
	"github.com/lucero-pos/lucero/internal/globalcash"
	"github.com/lucero-pos/lucero/internal/registers"
	"github.com/lucero-pos/lucero/internal/settlement"
	"github.com/lucero-pos/lucero/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	RegistersHandler  *registers.Handler
	DailyCashHandler  *dailycash.Handler
	GlobalCashHandler *globalcash.Handler
	SettlementHandler *settlement.Handler
	DebtHandler       *debt.Handler
	EngineHandler     *engine.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	// Everything below is tenant-scoped.
	r.Group(func(r chi.Router) {
		r.Use(identityMiddleware(params.Logger))

		r.Route("/cash-registers", params.RegistersHandler.MountRoutes)
		r.Route("/daily-cash", params.DailyCashHandler.MountRoutes)
		r.Route("/global-cash", params.GlobalCashHandler.MountRoutes)
		r.Route("/settlements", params.SettlementHandler.MountRoutes)
		r.Route("/debts", params.DebtHandler.MountRoutes)
		r.Route("/engine", params.EngineHandler.MountRoutes)
	})

	return r
}
