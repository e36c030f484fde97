// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/health", "200"))

	RecordAPIRequest("GET", "/health", 200, 3*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/health", "200"))
	if after != before+1 {
		t.Errorf("requests counter = %v, want %v", after, before+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("active after inc = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("active after dec = %v, want %v", got, before)
	}
}

func TestSetRouteBinding(t *testing.T) {
	failures := testutil.ToFloat64(RouteLoadFailures.WithLabelValues("/metrics-test"))

	SetRouteBinding("/metrics-test", false)
	if got := testutil.ToFloat64(RouteBindings.WithLabelValues("/metrics-test")); got != 0 {
		t.Errorf("binding gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(RouteLoadFailures.WithLabelValues("/metrics-test")); got != failures+1 {
		t.Errorf("load failures = %v, want %v", got, failures+1)
	}

	SetRouteBinding("/metrics-test", true)
	if got := testutil.ToFloat64(RouteBindings.WithLabelValues("/metrics-test")); got != 1 {
		t.Errorf("binding gauge = %v, want 1", got)
	}
}

func TestRecordMemorySample(t *testing.T) {
	RecordMemorySample(100, 200, 300)
	RecordMemorySample(110, 210, 0)

	if got := testutil.ToFloat64(HeapUsedBytes); got != 110 {
		t.Errorf("heap used = %v, want 110", got)
	}
	if got := testutil.ToFloat64(HeapTotalBytes); got != 210 {
		t.Errorf("heap total = %v, want 210", got)
	}
	if got := testutil.ToFloat64(RSSBytes); got != 300 {
		t.Errorf("rss = %v, want 300 (zero sample skipped)", got)
	}
}

func TestCounters(t *testing.T) {
	tests := []struct {
		name   string
		record func()
		read   func() float64
	}{
		{"fault", func() { RecordFault("rejected_task") }, func() float64 { return testutil.ToFloat64(FaultsTotal.WithLabelValues("rejected_task")) }},
		{"ingress", func() { RecordIngressRejection("invalid_json") }, func() float64 { return testutil.ToFloat64(IngressRejections.WithLabelValues("invalid_json")) }},
		{"crash log", func() { RecordCrashLogWrite("dropped") }, func() float64 { return testutil.ToFloat64(CrashLogWrites.WithLabelValues("dropped")) }},
		{"watchdog", func() { RecordWatchdogAlert("critical") }, func() float64 { return testutil.ToFloat64(WatchdogAlerts.WithLabelValues("critical")) }},
		{"request fault", func() { RecordRequestFault("route", 404) }, func() float64 { return testutil.ToFloat64(RequestFaultsTotal.WithLabelValues("route", "404")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.read()
			tt.record()
			if got := tt.read(); got != before+1 {
				t.Errorf("counter = %v, want %v", got, before+1)
			}
		})
	}
}

func TestSetShutdownState(t *testing.T) {
	SetShutdownState(1)
	if got := testutil.ToFloat64(ShutdownState); got != 1 {
		t.Errorf("shutdown state = %v, want 1", got)
	}
	SetShutdownState(0)
}
