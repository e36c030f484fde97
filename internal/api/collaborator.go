// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/response"
)

// CodePrefix is where the code collaborator is mounted.
const CodePrefix = "/code"

// ErrNoUpstream means the collaborator has nowhere to forward to.
var ErrNoUpstream = errors.New("no upstream configured")

// BindingKind describes what sits behind a RouteBinding.
type BindingKind string

const (
	// KindCollaborator is an independently loaded request handler.
	KindCollaborator BindingKind = "collaborator"
)

// RouteBinding is the outcome of loading one collaborator: either a handler
// mounted at Prefix, or absent with the reason in LoadErr.
type RouteBinding struct {
	Prefix  string
	Handler http.Handler
	Kind    BindingKind
	LoadErr error
}

// Mounted reports whether the binding has a handler.
func (b RouteBinding) Mounted() bool {
	return b.Handler != nil && b.LoadErr == nil
}

// Loader produces the handler for a prefix. Load runs once at startup.
type Loader struct {
	Prefix string
	Load   func() (http.Handler, error)
}

// reservedPrefixes are owned by the router itself.
var reservedPrefixes = map[string]bool{
	"/":        true,
	"/pair":    true,
	"/health":  true,
	"/metrics": true,
}

// DefaultLoaders returns the built-in collaborators for cfg.
func DefaultLoaders(cfg *config.Config) []Loader {
	return []Loader{CodeLoader(cfg.Routes.CodeUpstream)}
}

// LoadBindings runs every loader. A failed, panicking or misplaced loader
// yields an absent binding; it never stops the others.
func LoadBindings(loaders []Loader) []RouteBinding {
	bindings := make([]RouteBinding, 0, len(loaders))
	seen := make(map[string]bool, len(loaders))
	log := logging.WithComponent("routes")

	for _, l := range loaders {
		b := RouteBinding{Prefix: l.Prefix, Kind: KindCollaborator}

		switch {
		case !validPrefix(l.Prefix):
			b.LoadErr = fmt.Errorf("invalid prefix %q", l.Prefix)
		case reservedPrefixes[l.Prefix]:
			b.LoadErr = fmt.Errorf("prefix %q is reserved", l.Prefix)
		case seen[l.Prefix]:
			b.LoadErr = fmt.Errorf("prefix %q already bound", l.Prefix)
		default:
			b.Handler, b.LoadErr = safeLoad(l)
			if b.LoadErr == nil && b.Handler == nil {
				b.LoadErr = errors.New("loader returned no handler")
			}
		}

		if b.LoadErr != nil {
			b.Handler = nil
			log.Warn().Err(b.LoadErr).Str("prefix", l.Prefix).Msg("Collaborator failed to load, continuing without it")
		} else {
			seen[l.Prefix] = true
			log.Info().Str("prefix", l.Prefix).Msg("Collaborator mounted")
		}
		metrics.SetRouteBinding(l.Prefix, b.Mounted())
		bindings = append(bindings, b)
	}
	return bindings
}

func safeLoad(l Loader) (h http.Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("loader panicked: %v", r)
		}
	}()
	if l.Load == nil {
		return nil, errors.New("loader has no Load function")
	}
	return l.Load()
}

func validPrefix(p string) bool {
	return len(p) > 1 && strings.HasPrefix(p, "/") && !strings.HasSuffix(p, "/") && !strings.ContainsAny(p, "*{}")
}

// CodeLoader proxies /code to upstream. An empty or unusable upstream is a
// load failure.
func CodeLoader(upstream string) Loader {
	return Loader{
		Prefix: CodePrefix,
		Load: func() (http.Handler, error) {
			target, err := parseUpstream(upstream)
			if err != nil {
				return nil, err
			}
			return NewCollaboratorProxy("code", target), nil
		},
	}
}

func parseUpstream(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoUpstream
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute http(s) URL", raw)
	}
	return u, nil
}

// Breaker settings for collaborator proxies.
const (
	breakerMaxRequests  = 3
	breakerInterval     = time.Minute
	breakerTimeout      = 30 * time.Second
	breakerMinRequests  = 10
	breakerFailureRatio = 0.6
	breakerConsecutive  = 5
)

var errUpstreamStatus = errors.New("upstream returned server error")

type upstreamErrKey struct{}

// CollaboratorProxy forwards requests to an upstream behind a circuit
// breaker. Transport failures answer 502; an open breaker answers 503
// without contacting the upstream.
type CollaboratorProxy struct {
	name  string
	proxy *httputil.ReverseProxy
	cb    *gobreaker.CircuitBreaker[any]
}

// NewCollaboratorProxy creates a proxy to target. Request paths are appended
// to target's path.
func NewCollaboratorProxy(name string, target *url.URL) *CollaboratorProxy {
	cbName := "collaborator-" + name
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	p := &CollaboratorProxy{name: cbName}
	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			if pr.Out.URL.Path == "" {
				pr.Out.URL.Path = "/"
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode >= http.StatusInternalServerError {
				markUpstreamErr(resp.Request.Context(), fmt.Errorf("%w: %d", errUpstreamStatus, resp.StatusCode))
			}
			return nil
		},
		ErrorHandler: p.handleProxyError,
	}
	p.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: breakerMaxRequests,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= breakerConsecutive {
				return true
			}
			if counts.Requests < breakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= breakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			// A client hanging up says nothing about the upstream.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})
	return p
}

// ServeHTTP implements http.Handler.
func (p *CollaboratorProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, err := p.cb.Execute(func() (any, error) {
		var upstreamErr error
		ctx := context.WithValue(r.Context(), upstreamErrKey{}, &upstreamErr)
		p.proxy.ServeHTTP(w, r.WithContext(ctx))
		return nil, upstreamErr
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(p.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(p.name, "rejected").Inc()
		logging.Ctx(r.Context()).Warn().Err(err).Str("breaker", p.name).Msg("[CIRCUIT BREAKER] Request rejected")
		response.Error(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(p.name, "failure").Inc()
	}
}

// State returns the breaker state.
func (p *CollaboratorProxy) State() gobreaker.State {
	return p.cb.State()
}

func (p *CollaboratorProxy) handleProxyError(w http.ResponseWriter, r *http.Request, err error) {
	markUpstreamErr(r.Context(), err)
	logging.Ctx(r.Context()).Error().Err(err).Str("breaker", p.name).Msg("collaborator upstream failed")
	response.Error(w, http.StatusBadGateway, http.StatusText(http.StatusBadGateway))
}

func markUpstreamErr(ctx context.Context, err error) {
	if slot, ok := ctx.Value(upstreamErrKey{}).(*error); ok && *slot == nil {
		*slot = err
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
