// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package api builds Warden's HTTP surface on the chi router.

# Routes

	/code/*          optional collaborator (reverse proxy, circuit breaker)
	/pair, /pair/*   static pair page
	/                static main page (exact match)
	GET /health      process health
	GET /health/live liveness, always 200
	GET /health/ready readiness, 503 once draining
	/metrics         Prometheus exposition (routes.metrics_enabled)
	anything else    404 "Not Found"

chi's radix tree gives longest-prefix precedence, so /code/x never reaches the
main page handler.

# Fault boundaries

Route handlers return an error instead of writing one. The route boundary
turns fs.ErrNotExist into 404 "File not found" and everything else into 500
"Server error"; no error escapes it. Panics are left to the outermost
middleware.Recover, which answers through the terminal middleware.Boundary
and reports the fault to the interceptor.

# Collaborators

Collaborators are loaded once, before the listener starts. A Loader that
fails (or panics) yields an absent RouteBinding: the prefix is not mounted,
requests to it get the ordinary 404 and every other route keeps working.
*/
package api
