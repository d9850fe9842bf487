package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/pulsewatch/monitor/internal/api"
	"github.com/obsidianstack/pulsewatch/monitor/internal/archive"
	"github.com/obsidianstack/pulsewatch/monitor/internal/auth"
	"github.com/obsidianstack/pulsewatch/monitor/internal/config"
	"github.com/obsidianstack/pulsewatch/monitor/internal/healthsrv"
	"github.com/obsidianstack/pulsewatch/monitor/internal/history"
	"github.com/obsidianstack/pulsewatch/monitor/internal/journal"
	"github.com/obsidianstack/pulsewatch/monitor/internal/notify"
	"github.com/obsidianstack/pulsewatch/monitor/internal/outcome"
	"github.com/obsidianstack/pulsewatch/monitor/internal/probe"
	"github.com/obsidianstack/pulsewatch/monitor/internal/records"
	"github.com/obsidianstack/pulsewatch/monitor/internal/scheduler"
	"github.com/obsidianstack/pulsewatch/monitor/internal/status"
	"github.com/obsidianstack/pulsewatch/monitor/internal/ws"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the check and rotation cycles and serve the status API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		level := setupLogging(cfg.Monitor.Level())

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return run(ctx, cfg, level)
	},
}

func run(ctx context.Context, cfg *config.Config, level *slog.LevelVar) error {
	slog.Info("pulsewatch starting",
		"config", configPath,
		"data_dir", cfg.Monitor.DataDir,
		"logs_dir", cfg.Monitor.LogsDir,
		"check_interval", cfg.Monitor.CheckInterval,
		"rotation_interval", cfg.Monitor.RotationInterval,
	)

	store, err := records.New(cfg.Monitor.DataDir)
	if err != nil {
		return err
	}
	logs, err := journal.New(cfg.Monitor.LogsDir)
	if err != nil {
		return err
	}

	st := status.New(cfg.Server.StatusTTL)
	go st.Run(ctx)

	hub := ws.New(st, cfg.Server.StreamInterval)
	go hub.Run(ctx)

	authOpts := auth.FromConfig(cfg.Server.Auth)
	grpcSrv := healthsrv.New(authOpts)

	observers := []outcome.Observer{st, hub, grpcSrv}

	var hist *history.DB
	if cfg.History.Path != "" {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer hist.Close()
		observers = append(observers, hist)
		slog.Info("history enabled", "path", cfg.History.Path, "retention", cfg.History.Retention)
	}

	opts := scheduler.Options{
		CheckInterval:    cfg.Monitor.CheckInterval,
		RotationInterval: cfg.Monitor.RotationInterval,
	}
	if hist != nil {
		opts.Pruner = hist
		opts.Retention = cfg.History.Retention
	}
	if cfg.Archive.Enabled {
		up, err := archive.New(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		opts.Archiver = up
		slog.Info("archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	proc := outcome.New(logs, store, notify.FromConfig(cfg.Notifier), observers...)
	sched := scheduler.New(store, logs, probe.New(cfg.Probe), proc, opts)

	// Only the log level is applied on reload; everything else needs a restart.
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(updated *config.Config) {
				level.Set(updated.Monitor.Level())
				slog.Info("config hot-reloaded", "log_level", updated.Monitor.LogLevel)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	var httpSrv *http.Server
	if cfg.Server.HTTPPort > 0 {
		var histReader api.History
		if hist != nil {
			histReader = hist
		}
		httpSrv = &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.HTTPPort),
			Handler: api.New(api.Deps{
				Status:  st,
				History: histReader,
				Logs:    logs,
				Stream:  hub,
				Auth:    auth.Middleware(authOpts),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
	}

	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("listen on gRPC port %d: %w", cfg.Server.GRPCPort, err)
		}
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
	}

	sched.Start(ctx)

	<-ctx.Done()
	slog.Info("pulsewatch shutting down")

	// In-flight probes finish on their own timeouts and persist their results.
	sched.Wait()

	grpcSrv.Stop()
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}
	return nil
}
