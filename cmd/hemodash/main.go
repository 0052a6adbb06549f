package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hemodash/hemodash/cmd/hemodash/cli"
	"github.com/hemodash/hemodash/internal/app"
	"github.com/hemodash/hemodash/internal/audit"
	audithttp "github.com/hemodash/hemodash/internal/audit/http"
	"github.com/hemodash/hemodash/internal/auth"
	"github.com/hemodash/hemodash/internal/dashboard"
	dashboardhttp "github.com/hemodash/hemodash/internal/dashboard/http"
	"github.com/hemodash/hemodash/internal/ingest"
	"github.com/hemodash/hemodash/internal/observability"
	"github.com/hemodash/hemodash/internal/platform/cache"
	"github.com/hemodash/hemodash/internal/platform/db"
	"github.com/hemodash/hemodash/internal/rbac"
	"github.com/hemodash/hemodash/internal/registry"
	"github.com/hemodash/hemodash/internal/shared"
	"github.com/hemodash/hemodash/internal/source"
	"github.com/hemodash/hemodash/internal/syncer"
	"github.com/hemodash/hemodash/jobs"
)

const (
	idempotencyRetention = 7 * 24 * time.Hour
	cleanupInterval      = time.Hour
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "check":
			os.Exit(runCheck(ctx, os.Args[2:]))
		case "jobs":
			os.Exit(runJobs(ctx, os.Args[2:]))
		case "serve":
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q (serve, check, jobs)\n", os.Args[1])
			os.Exit(2)
		}
	}

	if err := serve(ctx); err != nil {
		slog.Default().Error("hemodash", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return err
	}
	logger.Info("site registry loaded", slog.Int("sites", reg.Len()), slog.Int("regions", len(reg.Regions())))

	metrics := observability.NewMetrics()
	httpClient := &http.Client{Timeout: cfg.SourceTimeout}
	pipeline := ingest.NewPipeline(reg, ingest.WithAssembler(dashboard.Assembler{WorkingDaysPerYear: cfg.WorkingDaysPerYear}))
	store := syncer.NewRedisStore(redisClient)
	syncr, err := syncer.New(syncer.Config{
		Fetcher:  source.NewCSVSource(cfg.SheetCSVURL, httpClient),
		Pipeline: pipeline,
		Store:    store,
		Lock:     shared.NewRedisLock(redisClient, shared.SyncLockKey, 2*cfg.SourceTimeout+30*time.Second),
		Logger:   logger,
		Metrics:  metrics.Jobs(),
	})
	if err != nil {
		return err
	}

	sessionManager := shared.NewSessionManager(redisClient, "hemodash_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	rbacMiddleware := rbac.Middleware{Logger: logger}
	idempotency := shared.NewIdempotencyStore(pool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	dashCfg := dashboardhttp.Config{
		Logger:      logger,
		Snapshots:   syncr,
		Registry:    reg,
		Idempotency: idempotency,
		Audit:       shared.NewAuditLogger(pool),
	}
	if source.NewBackend(cfg.BackendURL, httpClient).Enabled() {
		dashCfg.Queue = jobClient
	} else {
		logger.Info("backend url not set, record submission disabled")
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      auth.NewHandler(logger, auth.NewService(auth.NewRepository(pool)), sessionManager, csrfManager),
		DashboardHandler: dashboardhttp.NewHandler(dashCfg),
		AuditHandler:     audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
		JobHandler:       jobs.NewHandler(inspector, logger),
		RBACMiddleware:   rbacMiddleware,
		Metrics:          metrics,
	})
	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := syncr.Watch(gctx, store); err != nil && gctx.Err() == nil {
			logger.Warn("snapshot watch stopped", slog.Any("error", err))
		}
		return nil
	})
	g.Go(func() error {
		if cfg.SyncInterval > 0 {
			return syncr.Run(gctx, cfg.SyncInterval)
		}
		// The worker's cron keeps the snapshot fresh; one sync here covers
		// a cold start before its first tick.
		if _, err := syncr.Sync(gctx, false); err != nil && gctx.Err() == nil {
			logger.Warn("initial sync", slog.Any("error", err))
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := idempotency.Cleanup(gctx, idempotencyRetention); err != nil && gctx.Err() == nil {
					logger.Warn("idempotency cleanup", slog.Any("error", err))
				}
			}
		}
	})
	return g.Wait()
}

func runCheck(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	opts := cli.CheckOptions{}
	fs.StringVar(&opts.Path, "file", "", "sheet export to ingest (- for stdin)")
	fs.StringVar(&opts.RegistryPath, "registry", os.Getenv("REGISTRY_PATH"), "site registry JSON (default: built-in)")
	fs.IntVar(&opts.WorkingDaysPerYear, "working-days", dashboard.DefaultWorkingDaysPerYear, "working days per year")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}
	return cli.CheckCommand(ctx, opts)
}

func runJobs(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	redisAddr := fs.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")
	force := fs.Bool("force", false, "force the sync even if the source is unchanged")
	size := fs.Int("size", 10, "scheduled tasks to list")
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: hemodash jobs [flags] trigger|stats|scheduled")
		return cli.ExitError
	}

	jc, err := cli.NewJobsCLI(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return cli.ExitError
	}
	defer func() { _ = jc.Close() }()

	switch fs.Arg(0) {
	case "trigger":
		info, err := jc.Trigger(ctx, jobs.TaskDashboardSync, *force)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return cli.ExitError
		}
		fmt.Printf("enqueued %s (%s)\n", info.ID, info.Type)
	case "stats":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return cli.ExitError
		}
		fmt.Printf("%s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "scheduled":
		tasks, err := jc.ListScheduled(ctx, *size)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return cli.ExitError
		}
		for _, t := range tasks {
			fmt.Printf("%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown action %q\n", fs.Arg(0))
		return cli.ExitError
	}
	return cli.ExitOK
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
