package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lucero-pos/lucero/internal/app"
	"github.com/lucero-pos/lucero/internal/catalog"
	"github.com/lucero-pos/lucero/internal/dailycash"
	"github.com/lucero-pos/lucero/internal/debt"
	"github.com/lucero-pos/lucero/internal/engine"
	"github.com/lucero-pos/lucero/internal/globalcash"
	"github.com/lucero-pos/lucero/internal/platform/cache"
	"github.com/lucero-pos/lucero/internal/platform/db"
	"github.com/lucero-pos/lucero/internal/registers"
	"github.com/lucero-pos/lucero/internal/settlement"
	"github.com/lucero-pos/lucero/internal/shared"
	"github.com/lucero-pos/lucero/internal/watch"
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

	if err := db.ApplySchema(ctx, pool); err != nil {
		logger.Error("apply schema", slog.Any("error", err))
		os.Exit(1)
	}

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
	watcher := watch.NewManager(logger, redisClient)
	defer watcher.Close()

	registersService := registers.NewService(registers.NewRepository(pool))
	registersService.WithAudit(shared.NewAuditLogger(pool))
	registersHandler := registers.NewHandler(logger, registersService)

	dailyService := dailycash.NewService(dailycash.NewRepository(pool), catalogReader)
	dailyHandler := dailycash.NewHandler(logger, dailyService)

	globalService := globalcash.NewService(globalcash.NewRepository(pool), catalogReader)
	globalHandler := globalcash.NewHandler(logger, globalService)

	settlementService := settlement.NewService(settlement.NewRepository(pool), catalogReader)
	settlementHandler := settlement.NewHandler(logger, settlementService)

	debtService := debt.NewService(debt.NewRepository(pool))
	debtHandler := debt.NewHandler(logger, debtService)

	rulesEngine := engine.New(engine.Params{
		Logger:      logger,
		Catalog:     catalogReader,
		Sales:       engine.NewPgSaleStore(pool),
		Cash:        dailyService,
		Settlements: settlementService,
		Wallet:      globalService,
		Debts:       debtService,
		Notifier:    watcher,
	})
	engineHandler := engine.NewHandler(logger, rulesEngine)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		RegistersHandler:  registersHandler,
		DailyCashHandler:  dailyHandler,
		GlobalCashHandler: globalHandler,
		SettlementHandler: settlementHandler,
		DebtHandler:       debtHandler,
		EngineHandler:     engineHandler,
		JobHandler:        jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
