// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package services adapts long-running components to suture.Service.

# Available Services

HTTP Server (HTTPServerService):
  - Serves an *http.Server on a listener bound by the caller, so bind
    errors surface before the tree starts
  - Shuts the server down gracefully when the context is cancelled,
    bounded by the drain timeout
  - Terminates the whole tree when the server stops on its own

Usage:

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
	    return 1
	}
	tree.AddAPIService(services.NewHTTPServerService(server, ln, cfg.Shutdown.DrainTimeout))
*/
package services
