// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package metrics holds Warden's Prometheus instrumentation.
//
// Collectors are registered on the default registry through promauto and
// exposed by the /metrics route.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_http_requests_total",
			Help: "Total number of HTTP requests by route pattern",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	IngressRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_ingress_rejections_total",
			Help: "Requests rejected before dispatch",
		},
		[]string{"reason"}, // invalid_json, json_not_container, invalid_form, too_large, too_many_params, rate_limited
	)

	// Fault metrics
	FaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_faults_total",
			Help: "Intercepted faults by kind",
		},
		[]string{"kind"}, // rejected_task, uncaught_fault
	)

	RequestFaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_request_faults_total",
			Help: "Request faults converted into error responses",
		},
		[]string{"boundary", "status_code"}, // boundary: route, terminal
	)

	CrashLogWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_crash_log_writes_total",
			Help: "Crash log append attempts by result",
		},
		[]string{"result"}, // ok, error, dropped
	)

	// Route metrics
	RouteLoadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_route_load_failures_total",
			Help: "Collaborator loads that left their route absent",
		},
		[]string{"prefix"},
	)

	RouteBindings = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_route_bindings",
			Help: "Route bindings by prefix (1=mounted, 0=absent)",
		},
		[]string{"prefix"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Lifecycle metrics
	ShutdownState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_shutdown_state",
			Help: "Lifecycle state (0=running, 1=draining, 2=terminated)",
		},
	)

	DrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warden_drain_duration_seconds",
			Help:    "Time from entering draining to terminated",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// Watchdog metrics
	HeapUsedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_heap_used_bytes",
			Help: "Heap bytes in use at the last watchdog sample",
		},
	)

	HeapTotalBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_heap_total_bytes",
			Help: "Heap bytes obtained from the OS at the last watchdog sample",
		},
	)

	RSSBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_rss_bytes",
			Help: "Resident set size at the last watchdog sample",
		},
	)

	WatchdogAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_watchdog_alerts_total",
			Help: "Watchdog threshold crossings by level",
		},
		[]string{"level"}, // warning, critical
	)
)

// RecordAPIRequest records one completed request.
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordIngressRejection counts a request stopped by the ingress pipeline.
func RecordIngressRejection(reason string) {
	IngressRejections.WithLabelValues(reason).Inc()
}

// RecordFault counts an intercepted process fault.
func RecordFault(kind string) {
	FaultsTotal.WithLabelValues(kind).Inc()
}

// RecordRequestFault counts a request fault answered by a boundary.
func RecordRequestFault(boundary string, statusCode int) {
	RequestFaultsTotal.WithLabelValues(boundary, strconv.Itoa(statusCode)).Inc()
}

// RecordCrashLogWrite counts a crash log append by result.
func RecordCrashLogWrite(result string) {
	CrashLogWrites.WithLabelValues(result).Inc()
}

// SetRouteBinding records whether a prefix ended up mounted.
func SetRouteBinding(prefix string, mounted bool) {
	v := 0.0
	if mounted {
		v = 1
	} else {
		RouteLoadFailures.WithLabelValues(prefix).Inc()
	}
	RouteBindings.WithLabelValues(prefix).Set(v)
}

// SetShutdownState publishes the lifecycle state ordinal.
func SetShutdownState(state int) {
	ShutdownState.Set(float64(state))
}

// RecordMemorySample publishes a watchdog sample. rss is skipped when zero.
func RecordMemorySample(heapUsed, heapTotal, rss uint64) {
	HeapUsedBytes.Set(float64(heapUsed))
	HeapTotalBytes.Set(float64(heapTotal))
	if rss > 0 {
		RSSBytes.Set(float64(rss))
	}
}

// RecordWatchdogAlert counts a threshold crossing.
func RecordWatchdogAlert(level string) {
	WatchdogAlerts.WithLabelValues(level).Inc()
}
