// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package ingress validates and bounds request bodies before dispatch.
//
// Stages, applied to every route in order:
//
//  1. CORS (only when origins are configured)
//  2. Per-IP rate limit (only when a request budget is configured)
//  3. JSON bodies: size ceiling, well-formedness and an object or array at the top level
//  4. URL-encoded form bodies: size ceiling and parameter count
//
// A request rejected by any stage never reaches the router.
package ingress

import (
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/response"
)

// Rejection reasons, also used as metric labels.
const (
	ReasonInvalidJSON      = "invalid_json"
	ReasonJSONNotContainer = "json_not_container"
	ReasonInvalidForm      = "invalid_form"
	ReasonTooLarge         = "too_large"
	ReasonTooManyParams    = "too_many_params"
	ReasonRateLimited      = "rate_limited"
	ReasonUnreadable       = "unreadable"
)

// Config bounds request bodies.
type Config struct {
	// MaxBodyBytes applies to JSON and form bodies. Default: 10 MiB
	MaxBodyBytes int64

	// MaxParameters caps form fields. Default: 10000
	MaxParameters int

	// RateLimitRequests per RateLimitWindow per client IP. 0 disables.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// CORSOrigins enables CORS when non-empty.
	CORSOrigins []string
}

// DefaultConfig returns the standard limits with rate limiting and CORS off.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:    10 << 20,
		MaxParameters:   10000,
		RateLimitWindow: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.MaxParameters <= 0 {
		c.MaxParameters = d.MaxParameters
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = d.RateLimitWindow
	}
	return c
}

// Middlewares returns the enabled stages in application order.
func Middlewares(cfg Config) []func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	var stages []func(http.Handler) http.Handler
	if len(cfg.CORSOrigins) > 0 {
		stages = append(stages, CORS(cfg.CORSOrigins))
	}
	if cfg.RateLimitRequests > 0 {
		stages = append(stages, RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}
	return append(stages,
		JSON(cfg.MaxBodyBytes),
		Form(cfg.MaxBodyBytes, cfg.MaxParameters),
	)
}

// mediaType returns the lower-cased media type of the request, or "".
func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

func reject(w http.ResponseWriter, r *http.Request, status int, reason, msg string) {
	metrics.RecordIngressRejection(reason)
	logging.Ctx(r.Context()).Debug().
		Str("reason", reason).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request rejected at ingress")
	response.Error(w, status, msg)
}
