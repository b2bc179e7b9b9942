package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robalyx/rolesync/internal/redis"
	"github.com/robalyx/rolesync/internal/rest"
	"github.com/robalyx/rolesync/internal/setup"
	"github.com/robalyx/rolesync/internal/setup/config"
	"github.com/robalyx/rolesync/internal/setup/telemetry"
	"github.com/robalyx/rolesync/internal/worker/core"
	"github.com/robalyx/rolesync/internal/worker/rolesync"
	"github.com/robalyx/rolesync/pkg/utils"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// WorkerType identifies role sync workers in status reports.
	WorkerType = "rolesync"
)

// Admin API server timeouts.
const (
	ReadTimeout     = 5 * time.Second
	WriteTimeout    = 10 * time.Second
	ShutdownTimeout = 30 * time.Second
)

var ErrPassRejected = errors.New("sync pass was not accepted")

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "rolesync",
		Usage: "Synchronize Discord roles with GitHub repository membership",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the sync scheduler and admin API until interrupted",
				Action: runWorker,
			},
			{
				Name:   "once",
				Usage:  "Run a single sync pass and exit",
				Action: runOnce,
			},
			{
				Name:   "status",
				Usage:  "Show worker heartbeats and the last scheduler status",
				Action: showStatus,
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// engine is the scheduler with everything it reports to.
type engine struct {
	app       *setup.App
	scheduler *rolesync.Scheduler
	reporter  *core.StatusReporter
}

func newEngine(app *setup.App) *engine {
	logger := app.LogManager.GetWorkerLogger(WorkerType + "_worker")

	reporter := core.NewStatusReporter(app.StatusClient, WorkerType, logger)
	store := rolesync.NewStore(app.DB)
	reconciler := rolesync.NewReconciler(store, app.Discord, app.Config.Worker.Sync.UserConcurrency, logger)

	scheduler := rolesync.NewScheduler(
		store,
		app.GitHub,
		reconciler,
		reporter,
		rolesync.NewRedisStatusSink(app.SyncClient),
		rolesync.OptionsFromConfig(&app.Config.Worker.Sync),
		logger,
	)

	return &engine{
		app:       app,
		scheduler: scheduler,
		reporter:  reporter,
	}
}

// runWorker starts the scheduler and serves the admin API until a signal arrives.
func runWorker(ctx context.Context, _ *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	if delay := time.Duration(app.Config.Worker.StartupDelay) * time.Second; delay > 0 {
		app.Logger.Info("Waiting before startup", zap.Duration("delay", delay))

		if err := utils.Sleep(ctx, delay); err != nil {
			return nil
		}
	}

	e := newEngine(app)

	e.reporter.Start(ctx)
	defer e.reporter.Stop()

	e.scheduler.Start(ctx)

	var srv *http.Server
	if app.Config.Common.API.Enabled {
		srv = startAdminServer(e, app.Logger)
	}

	<-ctx.Done()

	app.Logger.Info("Shutting down worker...")

	e.scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("Admin API forced to shutdown", zap.Error(err))
		}
	}

	e.scheduler.Wait()

	app.Logger.Info("Worker gracefully stopped")

	return nil
}

// startAdminServer serves the admin API in the background.
func startAdminServer(e *engine, logger *zap.Logger) *http.Server {
	common := &e.app.Config.Common
	addr := fmt.Sprintf("%s:%d", common.API.Host, common.API.Port)

	handler := rest.NewServer(rest.Dependencies{
		Syncer:   e.scheduler,
		Quota:    e.app.GitHub,
		Workers:  core.NewMonitor(e.app.StatusClient, logger),
		Guilds:   e.app.DB.Model().Guild(),
		History:  e.app.DB.Model().History(),
		Accounts: e.app.DB.Model().Account(),
	}, common, logger)

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
	}
	srv.RegisterOnShutdown(handler.Close)

	go func() {
		logger.Info("Admin API started", zap.String("addr", addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start admin API", zap.Error(err))
		}
	}()

	return srv
}

// runOnce runs one pass in the foreground.
func runOnce(ctx context.Context, _ *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	e := newEngine(app)

	e.scheduler.Start(ctx)
	defer e.scheduler.Stop()

	accepted, err := e.scheduler.TriggerSync(ctx)
	if err != nil {
		return err
	}

	if !accepted {
		return ErrPassRejected
	}

	status := e.scheduler.Status()
	if summary := status.LastSummary; summary != nil {
		app.Logger.Info("Sync pass finished",
			zap.Int("guilds", summary.Guilds),
			zap.Int("guildsFailed", summary.GuildsFailed),
			zap.Int("rolesAdded", summary.RolesAdded),
			zap.Int("rolesRemoved", summary.RolesRemoved),
			zap.Duration("duration", summary.Duration))
	}

	return nil
}

// showStatus prints worker heartbeats and the last published scheduler status.
func showStatus(ctx context.Context, _ *cli.Command) error {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	redisManager := redis.NewManager(&cfg.Common.Redis, logger)
	defer redisManager.Close()

	statusClient, err := redisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		return err
	}

	syncClient, err := redisManager.GetClient(redis.SyncStatusDBIndex)
	if err != nil {
		return err
	}

	workers, err := core.NewMonitor(statusClient, logger).GetAllStatuses(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, w := range workers {
		logger.Info("Worker",
			zap.String("id", w.WorkerID),
			zap.String("type", w.WorkerType),
			zap.String("task", w.CurrentTask),
			zap.Int("progress", w.Progress),
			zap.Bool("healthy", w.IsHealthy),
			zap.Bool("stale", w.IsStale(now)))
	}

	status, err := rolesync.NewRedisStatusSink(syncClient).Load(ctx)
	if err != nil {
		return err
	}

	if status == nil {
		logger.Info("No scheduler status published yet")
		return nil
	}

	logger.Info("Scheduler",
		zap.Bool("running", status.Running),
		zap.Bool("inProgress", status.InProgress),
		zap.Time("lastCompletedAt", status.LastCompletedAt),
		zap.Time("nextRunAt", status.NextRunAt),
		zap.String("lastError", status.LastError))

	return nil
}
