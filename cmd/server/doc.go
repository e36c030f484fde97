// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package main is the entry point for the Warden server.
//
// Warden is a small HTTP front server whose main job is to stay up and stay
// observable when parts of it fail. It serves two static pages, proxies the
// optional /code collaborator, reports process health and shuts down on a
// fixed deadline.
//
// # Startup
//
//  1. Configuration: defaults, optional YAML file, environment (Koanf v2)
//  2. Logging: zerolog, configured from the loaded settings
//  3. Faults: crash log sink, shutdown coordinator, fault interceptor
//  4. Listener: bound before anything is supervised; failure exits 1
//  5. Routes: collaborators loaded once, failures leave their prefix unmounted
//  6. Supervisor tree: HTTP server and resource watchdog under suture
//
// # Configuration
//
// Common environment variables:
//
//	PORT             listen port (default 8000)
//	HTTP_HOST        listen address (default 0.0.0.0)
//	NODE_ENV         "development" exposes fault messages in 500 bodies
//	CODE_UPSTREAM    http(s) URL for the /code collaborator; unset leaves it unmounted
//	CRASH_LOG_PATH   crash log location (default crashes.log)
//	SHUTDOWN_TIMEOUT drain deadline (default 10s)
//	LOG_LEVEL        trace, debug, info, warn, error
//
// # Signals and exit codes
//
// SIGINT and SIGTERM start a graceful drain: the listener closes, in-flight
// requests finish, and the process exits 0. It exits 1 when the drain misses
// its deadline, when an uncaught fault occurred, when the listener cannot be
// bound, or when the HTTP server dies on its own.
//
// # Example Usage
//
//	PORT=8080 CODE_UPSTREAM=http://127.0.0.1:9000 ./warden
//	./warden validate --config /etc/warden/config.yaml
package main
