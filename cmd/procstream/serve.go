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

	"github.com/spf13/cobra"

	"github.com/loykin/procstream"
	"github.com/loykin/procstream/internal/server"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the procstream daemon",
		Long: `Start the daemon: it exposes the HTTP API from [server], optional
Prometheus metrics, transcripts and history sinks.

Examples:
  procstream serve --config procstream.toml
  procstream serve procstream.toml --daemonize --pidfile /run/procstream.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServe(cmd.Context(), serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon pid to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file (with --daemonize)")
	return cmd
}

func runServe(ctx context.Context, flags *ServeFlags) error {
	if flags.ConfigPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}
	cfg, err := loadConfig(flags.ConfigPath)
	if err != nil {
		return err
	}
	if cfg.Server == nil || cfg.Server.Listen == "" {
		return errors.New("[server].listen must be configured to run serve command")
	}
	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}
	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	engine, err := procstream.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	if cfg.Metrics.Enabled {
		if err := procstream.RegisterMetricsDefault(); err != nil {
			slog.Warn("Failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := procstream.ServeMetrics(cfg.Metrics.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("Metrics server error", "error", err)
				}
			}()
		}
	}

	srv, err := engine.NewHTTPServer(*cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(srv) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	if err := engine.Cancel(); err != nil {
		slog.Warn("Failed to cancel running operation", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// event streams without an operation filter never finish on their own
		_ = srv.Close()
	}
	return nil
}
