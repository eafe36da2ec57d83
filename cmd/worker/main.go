package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/lucero-pos/lucero/internal/app"
	"github.com/lucero-pos/lucero/internal/catalog"
	"github.com/lucero-pos/lucero/internal/globalcash"
	"github.com/lucero-pos/lucero/internal/platform/cache"
	"github.com/lucero-pos/lucero/internal/platform/db"
	"github.com/lucero-pos/lucero/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	catalogReader := catalog.NewCache(catalog.NewRepository(pool), redisClient, cfg.CatalogCacheTTL)
	globalService := globalcash.NewService(globalcash.NewRepository(pool), catalogReader)
	rollover := jobs.NewRollover(logger, pool, globalService)

	rolloverTask, err := jobs.NewGlobalCashRolloverTask(jobs.RolloverPayload{})
	if err != nil {
		logger.Error("build rollover task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Rollover:  rollover,
		Cron: []jobs.CronRegistration{
			// Right after the Monday boundary, then a daily sweep for
			// businesses that were offline when the week turned.
			{Spec: "5 0 * * 1", Task: rolloverTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 6 * * *", Task: rolloverTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
