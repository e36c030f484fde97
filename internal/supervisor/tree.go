// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/warden/internal/faults"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for each service to stop.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's documented defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// FaultReporter receives service panics and terminations observed by the tree.
// *faults.Interceptor satisfies it.
type FaultReporter interface {
	Report(rec faults.Record)
}

var (
	_ FaultReporter = (*faults.Interceptor)(nil)
	_ Launcher      = (*faults.Interceptor)(nil)
)

// SupervisorTree manages the supervisor hierarchy:
//
//	warden
//	├── background-layer (resource watchdog)
//	└── api-layer (HTTP server)
//
// A failing watchdog is restarted without touching the HTTP server.
type SupervisorTree struct {
	root       *suture.Supervisor
	background *suture.Supervisor
	api        *suture.Supervisor
	logger     *slog.Logger
	config     TreeConfig
	reporter   FaultReporter
}

// NewSupervisorTree creates the tree. reporter may be nil.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig, reporter FaultReporter) (*SupervisorTree, error) {
	if logger == nil {
		return nil, errors.New("supervisor tree requires a logger")
	}
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	t := &SupervisorTree{
		logger:   logger,
		config:   config,
		reporter: reporter,
	}

	// MustHook has a pointer receiver.
	slogHook := (&sutureslog.Handler{Logger: logger}).MustHook()

	rootSpec := suture.Spec{
		EventHook: func(e suture.Event) {
			slogHook(e)
			t.reportEvent(e)
		},
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	// Children inherit the EventHook when added to the root.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	t.root = suture.New("warden", rootSpec)
	t.background = suture.New("background-layer", childSpec)
	t.api = suture.New("api-layer", childSpec)

	t.root.Add(t.background)
	t.root.Add(t.api)

	return t, nil
}

// reportEvent forwards service faults to the reporter. suture has already
// recovered and will restart the service, so they are non-fatal.
func (t *SupervisorTree) reportEvent(e suture.Event) {
	if t.reporter == nil {
		return
	}
	switch ev := e.(type) {
	case suture.EventServicePanic:
		t.reporter.Report(faults.Record{
			Kind:    faults.RejectedTask,
			Message: fmt.Sprintf("service %s panicked: %s", ev.ServiceName, ev.PanicMsg),
			Stack:   ev.Stacktrace,
		})
	case suture.EventServiceTerminate:
		if err, ok := ev.Err.(error); ok && errors.Is(err, context.Canceled) {
			return
		}
		t.reporter.Report(faults.Record{
			Kind:    faults.RejectedTask,
			Message: fmt.Sprintf("service %s terminated: %v", ev.ServiceName, ev.Err),
		})
	}
}

// AddBackgroundService adds a service to the background layer.
func (t *SupervisorTree) AddBackgroundService(svc suture.Service) suture.ServiceToken {
	return t.background.Add(svc)
}

// AddAPIService adds a service to the API layer.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// tree's result once it stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that outlived ShutdownTimeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
