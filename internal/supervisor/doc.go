// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package supervisor runs Warden's long-running services and owns the process
lifecycle.

# Overview

The supervisor tree isolates the HTTP server from background work:

	warden
	├── background-layer
	│   └── resource watchdog
	└── api-layer
	    └── HTTPServerService

A watchdog crash is restarted with backoff and never touches the listener.
Panics and terminations reported by suture are forwarded to a FaultReporter,
normally the process's *faults.Interceptor.

# Lifecycle

Coordinator holds the Running → Draining → Terminated state machine:

	coord := supervisor.NewCoordinator(10*time.Second,
	    supervisor.WithReadinessDelay(2*time.Second))
	stop := coord.NotifySignals(interceptor)
	defer stop()
	code := coord.Run(ctx, tree)
	os.Exit(code)

Draining starts on SIGINT, SIGTERM or RequestDrain and the drain deadline
starts with it. Run returns 0 for a graceful drain and 1 for a fatal drain,
a missed deadline, or services that stopped on their own.

# Testing

MockService provides a configurable suture.Service for tree tests.
*/
package supervisor
