package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hemodash/hemodash/internal/app"
	"github.com/hemodash/hemodash/internal/dashboard"
	"github.com/hemodash/hemodash/internal/ingest"
	"github.com/hemodash/hemodash/internal/observability"
	"github.com/hemodash/hemodash/internal/platform/cache"
	"github.com/hemodash/hemodash/internal/registry"
	"github.com/hemodash/hemodash/internal/shared"
	"github.com/hemodash/hemodash/internal/source"
	"github.com/hemodash/hemodash/internal/syncer"
	"github.com/hemodash/hemodash/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

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

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Error("load registry", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	httpClient := &http.Client{Timeout: cfg.SourceTimeout}
	syncr, err := syncer.New(syncer.Config{
		Fetcher:  source.NewCSVSource(cfg.SheetCSVURL, httpClient),
		Pipeline: ingest.NewPipeline(reg, ingest.WithAssembler(dashboard.Assembler{WorkingDaysPerYear: cfg.WorkingDaysPerYear})),
		Store:    syncer.NewRedisStore(redisClient),
		Lock:     shared.NewRedisLock(redisClient, shared.SyncLockKey, 2*cfg.SourceTimeout+30*time.Second),
		Logger:   logger,
		Metrics:  metrics.Jobs(),
	})
	if err != nil {
		logger.Error("init syncer", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskDashboardSync, Handler: jobs.NewSyncJob(syncr, logger).Handle},
	}
	if backend := source.NewBackend(cfg.BackendURL, httpClient); backend.Enabled() {
		recordJob := jobs.NewRecordJob(backend, jobClient, cfg.SettleDelay, logger, metrics.Jobs())
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskRecordSubmit, Handler: recordJob.Handle})
	}

	syncTask, err := jobs.NewSyncTask(false)
	if err != nil {
		logger.Error("build sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SyncCron, Task: syncTask, Options: []asynq.Option{asynq.MaxRetry(1), asynq.Timeout(2 * cfg.SourceTimeout)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
