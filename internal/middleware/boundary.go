// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package middleware

import (
	"net/http"

	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/response"
)

// InternalServerError is the fixed error text of the terminal boundary.
const InternalServerError = "Internal Server Error"

// HandlerFunc is a handler that may return an unhandled error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Boundary is the terminal error boundary. Any fault reaching it becomes a
// 500 response unless the response has already started.
type Boundary struct {
	exposeDetails bool
}

// NewBoundary creates a Boundary. exposeDetails adds the fault message to
// the response body and must only be set in development.
func NewBoundary(exposeDetails bool) *Boundary {
	return &Boundary{exposeDetails: exposeDetails}
}

// Handle answers err with a 500. When headers were already sent it only logs;
// a second response is never attempted.
func (b *Boundary) Handle(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.Ctx(r.Context())

	if ResponseStarted(w) {
		log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("unhandled request fault after response started")
		return
	}

	log.Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("unhandled request fault")
	metrics.RecordRequestFault("terminal", http.StatusInternalServerError)

	body := response.ErrorBody{Error: InternalServerError}
	if b.exposeDetails && err != nil {
		body.Message = err.Error()
	}
	response.JSON(w, http.StatusInternalServerError, body)
}

// Wrap adapts fn so that a returned error reaches the boundary.
func (b *Boundary) Wrap(fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			b.Handle(w, r, err)
		}
	})
}

// ResponseStarted reports whether headers have been written through w.
// It relies on the writer exposing Status(), as chi's WrapResponseWriter does;
// other writers are assumed untouched.
func ResponseStarted(w http.ResponseWriter) bool {
	if sw, ok := w.(interface{ Status() int }); ok {
		return sw.Status() != 0
	}
	return false
}
