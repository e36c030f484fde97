// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/ingress"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/middleware"
	"github.com/tomtom215/warden/internal/response"
	"github.com/tomtom215/warden/internal/supervisor"
)

// Route-level responses.
const (
	msgNotFound     = "Not Found"
	msgFileNotFound = "File not found"
	msgServerError  = "Server error"
)

// Options wires a Router to the rest of the process.
type Options struct {
	Config *config.Config

	// State is read by the health endpoints. Required.
	State supervisor.StateView

	// Faults receives panics recovered from request handlers. May be nil in tests.
	Faults middleware.FaultReporter

	// StaticFS overrides the static directory from Config. Used by tests.
	StaticFS fs.FS

	// Loaders overrides DefaultLoaders(Config).
	Loaders []Loader

	// StartTime anchors uptime. Defaults to time.Now().
	StartTime time.Time
}

// Router owns the route table. Bindings are resolved in NewRouter and never
// change afterwards.
type Router struct {
	cfg      *config.Config
	boundary *middleware.Boundary
	faults   middleware.FaultReporter
	pages    *pageStore
	bindings []RouteBinding
	health   *HealthHandler
}

// NewRouter resolves collaborator bindings. Load failures are logged and
// leave the prefix unmounted; they never fail construction.
func NewRouter(opts Options) *Router {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	static := opts.StaticFS
	if static == nil {
		static = os.DirFS(cfg.Routes.StaticDir)
	}
	loaders := opts.Loaders
	if loaders == nil {
		loaders = DefaultLoaders(cfg)
	}
	start := opts.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	return &Router{
		cfg:      cfg,
		boundary: middleware.NewBoundary(cfg.IsDevelopment()),
		faults:   opts.Faults,
		pages:    newPageStore(static, cfg.Routes.PageCacheTTL),
		bindings: LoadBindings(loaders),
		health:   NewHealthHandler(opts.State, start),
	}
}

// Bindings returns the resolved collaborator bindings, mounted or absent.
func (router *Router) Bindings() []RouteBinding {
	out := make([]RouteBinding, len(router.bindings))
	copy(out, router.bindings)
	return out
}

// Boundary returns the terminal error boundary shared by all routes.
func (router *Router) Boundary() *middleware.Boundary {
	return router.boundary
}

// SetupChi builds the complete handler.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.PrometheusMetrics) // outside Recover so recovered panics count as 500
	r.Use(middleware.Recover(router.boundary, router.faults))
	r.Use(ingress.Middlewares(ingressConfig(router.cfg))...)

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	// ========================
	// Collaborators
	// ========================
	for _, b := range router.bindings {
		if !b.Mounted() {
			continue
		}
		r.Mount(b.Prefix, http.StripPrefix(b.Prefix, b.Handler))
	}

	// ========================
	// Static Pages
	// ========================
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Compress(5, "text/html", "text/css", "application/javascript"))

		pair := router.routeBoundary("/pair", router.pages.staticPage(router.cfg.Routes.PairPage))
		r.Handle("/pair", pair)
		r.Handle("/pair/*", pair)

		r.Handle("/", router.routeBoundary("/", router.pages.staticPage(router.cfg.Routes.MainPage)))
	})

	// ========================
	// Health
	// ========================
	r.Route("/health", func(r chi.Router) {
		r.Use(chimiddleware.NoCache)
		r.Get("/", router.boundary.Wrap(router.health.Health).ServeHTTP)
		r.Get("/live", router.health.Live)
		r.Get("/ready", router.health.Ready)
	})

	// ========================
	// Observability
	// ========================
	if router.cfg.Routes.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// routeBoundary runs fn and converts its error into a route-level response.
// Errors stop here; they are never re-raised.
func (router *Router) routeBoundary(route string, fn middleware.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		err := fn(ww, r)
		if err == nil {
			return
		}

		status, msg := http.StatusInternalServerError, msgServerError
		if errors.Is(err, fs.ErrNotExist) {
			status, msg = http.StatusNotFound, msgFileNotFound
		}

		log := logging.Ctx(r.Context())
		if middleware.ResponseStarted(ww) {
			log.Error().Err(err).Str("route", route).Msg("route fault after response started")
			return
		}
		log.Error().Err(err).Str("route", route).Int("status", status).Msg("route fault")
		metrics.RecordRequestFault("route", status)
		response.Text(ww, status, msg)
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	response.Text(w, http.StatusNotFound, msgNotFound)
}

func ingressConfig(cfg *config.Config) ingress.Config {
	return ingress.Config{
		MaxBodyBytes:      cfg.Ingress.MaxBodyBytes,
		MaxParameters:     cfg.Ingress.MaxParameters,
		RateLimitRequests: cfg.Ingress.RateLimitRequests,
		RateLimitWindow:   cfg.Ingress.RateLimitWindow,
		CORSOrigins:       cfg.Ingress.CORSOrigins,
	}
}
