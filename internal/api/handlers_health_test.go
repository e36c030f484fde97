// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/supervisor"
	"github.com/tomtom215/warden/internal/watchdog"
)

func TestHealthSnapshot(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealthHandler(fixedState(supervisor.Draining), start)
	h.now = func() time.Time { return start.Add(90 * time.Second) }
	h.memory = func() watchdog.Memory {
		return watchdog.Memory{HeapUsed: 10 << 20, HeapTotal: 32 << 20, RSS: 48 << 20}
	}

	got := h.Snapshot()
	if got.Status != "OK" {
		t.Errorf("Status = %q, want OK", got.Status)
	}
	if got.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds = %v, want 90", got.UptimeSeconds)
	}
	if got.HeapUsedBytes != 10<<20 || got.HeapTotalBytes != 32<<20 || got.RSSBytes != 48<<20 {
		t.Errorf("memory = %+v", got)
	}
	if got.State != "draining" {
		t.Errorf("State = %q, want draining", got.State)
	}
	if got.Timestamp != "2026-01-01T00:01:30Z" {
		t.Errorf("Timestamp = %q", got.Timestamp)
	}
	if got.Goroutines < 1 {
		t.Errorf("Goroutines = %d", got.Goroutines)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	for _, state := range []supervisor.State{supervisor.Running, supervisor.Draining} {
		t.Run(state.String(), func(t *testing.T) {
			t.Parallel()

			h, _ := newTestRouter(t, func(o *Options) { o.State = fixedState(state) })
			rec := do(h, http.MethodGet, "/health", "", nil)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 in every state", rec.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			for _, key := range []string{"status", "uptimeSeconds", "heapUsedBytes", "heapTotalBytes", "timestamp", "state"} {
				if _, ok := body[key]; !ok {
					t.Errorf("missing field %q in %s", key, rec.Body.String())
				}
			}
			if body["state"] != state.String() {
				t.Errorf("state = %v, want %s", body["state"], state)
			}
			if cc := rec.Header().Get("Cache-Control"); cc == "" {
				t.Error("health response is cacheable")
			}
		})
	}
}

func TestHealthUptimeNeverDecreases(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, nil)

	last := -1.0
	for i := 0; i < 5; i++ {
		rec := do(h, http.MethodGet, "/health", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: status = %d, want 200", i+1, rec.Code)
		}
		var body struct {
			UptimeSeconds float64 `json:"uptimeSeconds"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("call %d: invalid JSON: %v", i+1, err)
		}
		if body.UptimeSeconds < last {
			t.Errorf("call %d: uptimeSeconds went from %v to %v", i+1, last, body.UptimeSeconds)
		}
		last = body.UptimeSeconds
		time.Sleep(2 * time.Millisecond)
	}
	if last <= 0 {
		t.Errorf("uptimeSeconds = %v after several calls, want > 0", last)
	}
}

func TestHealthReadiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state supervisor.State
		want  int
	}{
		{supervisor.Running, http.StatusOK},
		{supervisor.Draining, http.StatusServiceUnavailable},
		{supervisor.Terminated, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		h := NewHealthHandler(fixedState(tt.state), time.Now())
		rec := httptest.NewRecorder()
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.state, rec.Code, tt.want)
		}
	}
}

func TestHealthLiveness(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler(fixedState(supervisor.Draining), time.Now())
	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHealthNilStateView(t *testing.T) {
	t.Parallel()

	if got := NewHealthHandler(nil, time.Now()).Snapshot().State; got != "running" {
		t.Errorf("State = %q, want running", got)
	}
}
