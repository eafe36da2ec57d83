package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucero-pos/lucero/internal/globalcash"
	"github.com/lucero-pos/lucero/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGlobalCashRollover applies the weekly period policy: auto-close
	// stale previous weeks and open the current one.
	TaskGlobalCashRollover = "globalcash:rollover"
)

// RolloverPayload limits a rollover run to one business. Empty means every
// business with registers.
type RolloverPayload struct {
	BusinessID uuid.UUID `json:"businessId,omitempty"`
}

// NewGlobalCashRolloverTask constructs the weekly rollover task.
func NewGlobalCashRolloverTask(payload RolloverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGlobalCashRollover, data), nil
}

// Rollover runs the weekly global cash policy for every business.
type Rollover struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
	cash   *globalcash.Service
}

// NewRollover constructs the rollover task handler.
func NewRollover(logger *slog.Logger, pool *pgxpool.Pool, cash *globalcash.Service) *Rollover {
	return &Rollover{logger: logger, pool: pool, cash: cash}
}

// Handle processes TaskGlobalCashRollover tasks. Per business it first runs
// the stale-period check, then makes sure the current week's period exists.
// Both steps are idempotent, so overlapping runs are harmless.
func (r *Rollover) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RolloverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	businesses, err := r.businesses(ctx, payload.BusinessID)
	if err != nil {
		return fmt.Errorf("jobs: list businesses: %w", err)
	}

	var failed int
	for _, businessID := range businesses {
		bctx := shared.ContextWithIdentity(ctx, shared.SystemIdentity(businessID))

		check, err := r.cash.CheckPreviousWeek(bctx)
		if err != nil {
			failed++
			r.logger.Error("rollover: check previous week",
				slog.String("business_id", businessID.String()),
				slog.Any("error", err))
			continue
		}
		for _, warning := range check.Warnings {
			r.logger.Warn("rollover: stale period", slog.String("business_id", businessID.String()), slog.String("warning", warning))
		}
		if check.AutoClosed {
			r.logger.Info("rollover: auto-closed previous week",
				slog.String("business_id", businessID.String()),
				slog.String("period_id", check.Period.ID.String()))
		}

		if _, err := r.cash.EnsureCurrentWeek(bctx); err != nil && !errors.Is(err, globalcash.ErrPeriodAlreadyOpen) {
			failed++
			r.logger.Error("rollover: ensure current week",
				slog.String("business_id", businessID.String()),
				slog.Any("error", err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("jobs: rollover failed for %d of %d businesses", failed, len(businesses))
	}
	return nil
}

func (r *Rollover) businesses(ctx context.Context, only uuid.UUID) ([]uuid.UUID, error) {
	if only != uuid.Nil {
		return []uuid.UUID{only}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT business_id FROM cash_registers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
