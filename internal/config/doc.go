// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package config loads Warden's configuration with koanf.

# Sources

Values are layered, later sources overriding earlier ones:
  - Built-in defaults (defaultConfig)
  - A YAML file: the --config flag, CONFIG_PATH, ./config.yaml or /etc/warden/config.yaml
  - Environment variables

# Environment Variables

Server:
  - PORT (alias HTTP_PORT): listen port (default: 8000)
  - HTTP_HOST: bind address (default: 0.0.0.0)
  - ENVIRONMENT (alias NODE_ENV): production or development (default: production)

Ingress:
  - MAX_BODY_BYTES: JSON and form body ceiling (default: 10485760)
  - MAX_PARAMETERS: form parameter ceiling (default: 10000)
  - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW: per-IP limit, 0 disables (default: 0, 1m)
  - CORS_ORIGINS: comma-separated allowed origins (default: none)

Routes:
  - STATIC_DIR, MAIN_PAGE, PAIR_PAGE: static resources (default: ., main.html, pair.html)
  - CODE_UPSTREAM: URL of the /code collaborator; empty leaves the route unmounted
  - METRICS_ENABLED: expose /metrics (default: true)
  - PAGE_CACHE_TTL: how long static page contents are cached, 0 disables (default: 5s)

Faults and shutdown:
  - CRASH_LOG_PATH: crash log file (default: crashes.log)
  - FAULT_GRACE_PERIOD: delay before exiting after an uncaught fault (default: 5s)
  - SHUTDOWN_TIMEOUT: drain deadline (default: 10s)
  - SHUTDOWN_READINESS_DELAY: time /health/ready answers 503 before the listener closes, must be below SHUTDOWN_TIMEOUT (default: 0)

Watchdog:
  - WATCHDOG_INTERVAL, WATCHDOG_WARN_MB, WATCHDOG_CRITICAL_MB (default: 60s, 500, 800)

Logging:
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER (default: info, json, false)

# Validation

Load validates the result with the validation package and fails fast on
out-of-range ports, unknown environments, zero durations and thresholds
where the critical level does not exceed the warning level.
*/
package config
