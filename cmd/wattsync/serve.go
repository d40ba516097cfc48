package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	appfactory "github.com/wattsync/wattsync/internal/appstate/factory"
	"github.com/wattsync/wattsync/internal/config"
	"github.com/wattsync/wattsync/internal/logger"
	"github.com/wattsync/wattsync/internal/metrics"
	"github.com/wattsync/wattsync/internal/recorder"
	"github.com/wattsync/wattsync/internal/server"
	"github.com/wattsync/wattsync/internal/source"
	tsfactory "github.com/wattsync/wattsync/internal/timeseries/factory"
)

func createServeCommand(flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder daemon",
		Long: `Start the recorder: connect to the hub, ingest live energy events,
reconcile statistics hourly, and expose the control API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ConfigPath, "config", "wattsync.toml", "path to TOML config file")
	return cmd
}

func runServe(flags ServeFlags) error {
	fc, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}

	logCfg := logger.Config{}
	if fc.Log != nil {
		logCfg = *fc.Log
	}
	lg, logCloser, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(lg)

	if fc.Metrics.Enabled {
		if err := metrics.RegisterDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	tsStore, err := tsfactory.NewFromDSN(fc.TimeSeries.DSN)
	if err != nil {
		return fmt.Errorf("open time-series store: %w", err)
	}
	defer func() { _ = tsStore.Close() }()

	appStore, err := appfactory.NewFromDSN(fc.AppState.DSN)
	if err != nil {
		return fmt.Errorf("open app-state store: %w", err)
	}
	defer func() { _ = appStore.Close() }()

	hub, err := source.NewHubClient(fc.Source, lg)
	if err != nil {
		return fmt.Errorf("init hub client: %w", err)
	}
	defer func() { _ = hub.Close() }()

	ctrl := recorder.New(fc.Recorder, hub, tsStore, appStore, lg)
	ctx := context.Background()
	if err := ctrl.Start(ctx); err != nil {
		// Keep serving so operators can inspect /status; recovery
		// requires a process restart.
		lg.Error("recorder startup failed, serving degraded", "error", err)
	}

	srv, err := server.NewServer(fc.Server.Listen, fc.Server.BasePath, ctrl, appStore)
	if err != nil {
		ctrl.Stop(ctx)
		return fmt.Errorf("start http server: %w", err)
	}
	lg.Info("wattsync serving", "listen", fc.Server.Listen, "base_path", fc.Server.BasePath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	lg.Info("shutting down", "signal", s.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", "error", err)
	}
	ctrl.Stop(shutdownCtx)
	return nil
}
