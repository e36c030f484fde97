// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/response"
	"github.com/tomtom215/warden/internal/supervisor"
	"github.com/tomtom215/warden/internal/watchdog"
)

// ProcessHealth is the /health payload. It is computed per request.
type ProcessHealth struct {
	Status         string  `json:"status"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
	HeapUsedBytes  uint64  `json:"heapUsedBytes"`
	HeapTotalBytes uint64  `json:"heapTotalBytes"`
	RSSBytes       uint64  `json:"rssBytes,omitempty"`
	Goroutines     int     `json:"goroutines"`
	State          string  `json:"state"`
	Timestamp      string  `json:"timestamp"`
}

// HealthHandler serves the health endpoints. It only reads lifecycle state.
type HealthHandler struct {
	state     supervisor.StateView
	startTime time.Time
	now       func() time.Time
	memory    func() watchdog.Memory
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(state supervisor.StateView, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		state:     state,
		startTime: startTime,
		now:       time.Now,
		memory:    watchdog.ReadMemory,
	}
}

// Snapshot computes the current ProcessHealth.
func (h *HealthHandler) Snapshot() ProcessHealth {
	now := h.now()
	mem := h.memory()
	return ProcessHealth{
		Status:         "OK",
		UptimeSeconds:  now.Sub(h.startTime).Seconds(),
		HeapUsedBytes:  mem.HeapUsed,
		HeapTotalBytes: mem.HeapTotal,
		RSSBytes:       mem.RSS,
		Goroutines:     runtime.NumGoroutine(),
		State:          h.currentState().String(),
		Timestamp:      now.UTC().Format(time.RFC3339Nano),
	}
}

// Health handles GET /health. It answers 200 in every lifecycle state.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) error {
	data, err := json.Marshal(h.Snapshot())
	if err != nil {
		return fmt.Errorf("encode health: %w", err)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(data)
	return err
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready handles GET /health/ready: 200 while running, 503 otherwise.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	state := h.currentState()
	status := http.StatusOK
	if state != supervisor.Running {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, map[string]string{"status": state.String()})
}

func (h *HealthHandler) currentState() supervisor.State {
	if h.state == nil {
		return supervisor.Running
	}
	return h.state.State()
}
