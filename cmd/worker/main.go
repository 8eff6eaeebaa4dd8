package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/carbonledger/carbonledger/internal/app"
	"github.com/carbonledger/carbonledger/internal/audit"
	jobmetrics "github.com/carbonledger/carbonledger/internal/jobs"
	"github.com/carbonledger/carbonledger/internal/observability"
	"github.com/carbonledger/carbonledger/internal/shared"
	"github.com/carbonledger/carbonledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	backends, err := app.OpenBackends(ctx, cfg, true)
	if err != nil {
		logger.Error("open backends", slog.Any("error", err))
		os.Exit(1)
	}
	defer backends.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	recorder := audit.NewRecorder(shared.NewAuditLogger(backends.Pool))
	eventJob := jobs.NewLedgerEventJob(recorder, logger, jobMetrics)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskLedgerEvent, Handler: eventJob.Handle},
	}
	var cron []jobs.CronRegistration

	// The memory journal lives inside ledgerd, so there is nothing here to verify.
	if cfg.LedgerStore == app.StorePostgres {
		integrity := jobs.NewIntegrityCheck(backends.Store, jobs.NewPGProjection(backends.Pool), logger, jobMetrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskLedgerIntegrity, Handler: integrity.Handle})
		if cfg.IntegrityCron != "" {
			task, err := jobs.NewLedgerIntegrityTask(true)
			if err != nil {
				logger.Error("prepare integrity task", slog.Any("error", err))
				os.Exit(1)
			}
			cron = append(cron, jobs.CronRegistration{
				Spec:    cfg.IntegrityCron,
				Task:    task,
				Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(0)},
			})
		}
	} else {
		logger.Warn("integrity checks disabled", slog.String("store", cfg.LedgerStore))
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr), slog.Int("handlers", len(handlers)))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shutdown complete")
}
