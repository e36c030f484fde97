// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tomtom215/warden/internal/logging"
)

// FaultReporter receives panics that escaped every handler.
type FaultReporter interface {
	Uncaught(v any, stack []byte)
}

// Recover is the outermost request middleware. A panic is answered through
// the boundary (so the client still gets a 500) and then handed to reporter,
// whose policy terminates the process after a grace period.
//
// http.ErrAbortHandler is re-panicked so net/http can abort the connection
// quietly, as it documents.
func Recover(boundary *Boundary, reporter FaultReporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww, ok := w.(chimiddleware.WrapResponseWriter)
			if !ok {
				ww = chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			}

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity per net/http docs
					panic(rec)
				}

				stack := debug.Stack()
				logging.Ctx(r.Context()).Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", stack).
					Msg("panic in request handler")

				boundary.Handle(ww, r, fmt.Errorf("panic: %v", rec))
				if reporter != nil {
					reporter.Uncaught(rec, stack)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
