// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/warden/internal/api"
	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/crashlog"
	"github.com/tomtom215/warden/internal/faults"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/supervisor"
	"github.com/tomtom215/warden/internal/supervisor/services"
	"github.com/tomtom215/warden/internal/watchdog"
)

// crashLogCloseTimeout bounds the final crash log flush after the tree stops.
const crashLogCloseTimeout = time.Second

func runServe(_ *cobra.Command, _ []string) error {
	os.Exit(serve(configPath))
	return nil
}

// serve runs the server until it terminates and returns the process exit code.
func serve(path string) int {
	cfg, err := config.Load(path)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	logging.Info().
		Str("addr", cfg.Addr()).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Warden")

	// Fault containment comes up before anything that can fault.
	sink := crashlog.New(cfg.Faults.CrashLogPath, cfg.Faults.BufferSize)
	coord := supervisor.NewCoordinator(
		cfg.Shutdown.DrainTimeout,
		supervisor.WithReadinessDelay(cfg.Shutdown.ReadinessDelay),
	)
	interceptor := faults.New(sink, coord, faults.Config{GracePeriod: cfg.Faults.GracePeriod})
	if err := faults.Install(interceptor, cfg.Faults.CrashLogPath); err != nil {
		logging.Warn().Err(err).Msg("Runtime crash output not redirected to crash log")
	}
	logging.Info().Str("path", sink.Path()).Msg("Fault interceptor installed")

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		logging.Error().Err(err).Str("addr", cfg.Addr()).Msg("Failed to bind listener")
		closeSink(sink)
		return 1
	}

	router := api.NewRouter(api.Options{
		Config: cfg,
		State:  coord,
		Faults: interceptor,
	})
	for _, b := range router.Bindings() {
		ev := logging.Info().Str("prefix", b.Prefix).Bool("mounted", b.Mounted())
		if b.LoadErr != nil {
			ev = ev.Str("load_error", b.LoadErr.Error())
		}
		ev.Msg("Route binding")
	}

	server := &http.Server{
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	tree, err := supervisor.NewSupervisorTree(
		logging.NewSlogLogger("supervisor"),
		supervisor.TreeConfig{
			FailureThreshold: cfg.Supervisor.FailureThreshold,
			FailureDecay:     cfg.Supervisor.FailureDecay,
			FailureBackoff:   cfg.Supervisor.FailureBackoff,
			ShutdownTimeout:  cfg.Shutdown.DrainTimeout,
		},
		interceptor,
	)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		_ = ln.Close()
		closeSink(sink)
		return 1
	}

	tree.AddBackgroundService(watchdog.New(watchdog.Config{
		Interval:   cfg.Watchdog.Interval,
		WarnMB:     cfg.Watchdog.WarnMB,
		CriticalMB: cfg.Watchdog.CriticalMB,
	}))
	tree.AddAPIService(services.NewHTTPServerService(server, ln, cfg.Shutdown.DrainTimeout))

	stopSignals := coord.NotifySignals(interceptor)
	defer stopSignals()

	logging.Info().Str("addr", ln.Addr().String()).Msg("Server listening")

	code := coord.Run(context.Background(), tree)

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the drain deadline")
		}
	}

	closeSink(sink)

	logging.Info().
		Int("exit_code", code).
		Str("state", coord.State().String()).
		Msg("Server stopped")
	return code
}

func closeSink(sink *crashlog.Sink) {
	ctx, cancel := context.WithTimeout(context.Background(), crashLogCloseTimeout)
	defer cancel()
	if err := sink.Close(ctx); err != nil {
		logging.Warn().Err(err).Msg("Crash log not fully flushed")
	}
}
