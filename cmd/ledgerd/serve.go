package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/carbonledger/carbonledger/internal/app"
	"github.com/carbonledger/carbonledger/internal/audit"
	audithttp "github.com/carbonledger/carbonledger/internal/audit/http"
	"github.com/carbonledger/carbonledger/internal/claims"
	jobmetrics "github.com/carbonledger/carbonledger/internal/jobs"
	"github.com/carbonledger/carbonledger/internal/ledger"
	"github.com/carbonledger/carbonledger/internal/observability"
	"github.com/carbonledger/carbonledger/internal/platform/cache"
	"github.com/carbonledger/carbonledger/internal/shared"
	"github.com/carbonledger/carbonledger/jobs"
)

const writerLeaseTTL = 30 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  serveRun,
	}
}

func serveRun(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := app.OpenBackends(ctx, cfg, true)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer backends.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	lease, err := cache.AcquireLease(ctx, redisClient, shared.LedgerWriterLockKey(cfg.LedgerStore), leaseOwner(), writerLeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire writer lease: %w", err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("release writer lease", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	recorder := audit.NewRecorder(shared.NewAuditLogger(backends.Pool))
	sinks := ledger.Sinks{ledger.LogSink{Logger: logger}}
	if cfg.AuditAsync {
		client, err := jobs.NewClient(redisOpts, jobMetrics)
		if err != nil {
			return fmt.Errorf("init jobs client: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		sinks = append(sinks, client)
	} else {
		sinks = append(sinks, recorder)
	}

	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		return err
	}
	l, err := ledger.Open(ctx, ledgerCfg, backends.Store, sinks, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	l.SetObserver(metrics)

	claimsService := claims.NewService(claims.NewRedisStore(redisClient), l)
	auditService := audit.NewService(audit.NewPGRepository(backends.Pool))

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		LedgerHandler: ledger.NewHandler(logger, l),
		ClaimsHandler: claims.NewHandler(logger, claimsService),
		AuditHandler:  audithttp.NewHandler(logger, auditService),
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.LedgerStore))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := lease.Keep(groupCtx); err != nil {
			return fmt.Errorf("writer lease lost: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
