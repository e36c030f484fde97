// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package middleware contains Warden's cross-cutting HTTP middleware.

Key Components:

  - RequestID: accepts a well-formed X-Request-ID or generates a UUID, and
    stores it in the request context for logging
  - PrometheusMetrics: request counters and latency histograms labelled by
    the chi route pattern
  - Recover: turns a handler panic into a fault report and a 500 response
  - Boundary: the terminal error handler every route failure reaches

Middleware Stack:

The router installs them outermost first:

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.Recover(boundary, interceptor))

PrometheusMetrics sits outside Recover so a recovered panic is counted as
the 500 the client saw.

Error Boundary:

Handlers that can fail return an error and are wrapped with Boundary.Wrap:

	r.Get("/health", boundary.Wrap(health.Health).ServeHTTP)

The boundary logs the error with the request ID, writes a 500 unless the
response has already started, and never panics.
*/
package middleware
