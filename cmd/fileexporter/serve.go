package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelswisa/FileExporter/internal/api"
	"github.com/michaelswisa/FileExporter/internal/api/middleware"
	"github.com/michaelswisa/FileExporter/internal/event"
	"github.com/michaelswisa/FileExporter/internal/scheduler"
	"github.com/michaelswisa/FileExporter/internal/version"
	"github.com/michaelswisa/FileExporter/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic scanner, watcher and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logManager, logger := setupLogging(cfg.Logging)
	defer logManager.Close() //nolint:errcheck

	logger.Info("starting fileexporter",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("root_path", cfg.Scan.RootPath),
		slog.String("env", cfg.Scan.Env),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newCore(cfg, logger)
	c.scanner.Subscribe(c.bus)
	c.bus.Subscribe(event.ScanCompleted, func(e event.Event) {
		logger.Debug("scan completed event", "tenant", e.Tenant, "data", e.Data)
	})
	c.bus.Subscribe(event.TenantDirRemoved, func(e event.Event) {
		logger.Warn("landing directory disappeared", "dir", e.DirName, "tenant", e.Tenant)
	})
	go c.bus.Start()

	sched := scheduler.New(c.scanner, time.Duration(cfg.Scan.ScanIntervalMinutes)*time.Minute, logger)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	if cfg.Watch.Enabled {
		w := watcher.NewService(watcher.Options{
			Root:         cfg.Scan.RootPath,
			Env:          cfg.Scan.Env,
			Debounce:     time.Duration(cfg.Watch.DebounceSeconds) * time.Second,
			PollInterval: time.Duration(cfg.Watch.PollIntervalSeconds) * time.Second,
		}, c.bus, logger)
		go w.Start(ctx)
	}

	router := api.NewRouter(api.RouterDeps{
		Scanner:    c.scanner,
		Scheduler:  sched,
		LogManager: logManager,
		Gatherer:   c.registry,
		Limiter:    middleware.NewTriggerLimiter(ctx, cfg.API.TriggersPerMinute, cfg.API.TriggerBurst),
		Logger:     logger,
		BasePath:   cfg.Server.BasePath,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			logger.Error("server error", "error", err)
			stop()
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("scan cycle still running at shutdown")
	}
	if err := c.scanner.Wait(shutdownCtx); err != nil {
		logger.Warn("background scans still running at shutdown", "error", err)
	}
	c.bus.Stop(2 * time.Second)
	return errors.Join(errs...)
}
