// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package watchdog periodically samples process memory and logs when heap
// usage crosses the warning or critical threshold. It never acts on what it
// observes.
package watchdog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// Level is the outcome of comparing a Sample against the thresholds.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "ok"
	}
}

// Config holds the sampling interval and thresholds in megabytes.
type Config struct {
	Interval   time.Duration
	WarnMB     uint64
	CriticalMB uint64
}

// DefaultConfig samples every minute, warns at 500 MB and goes critical at 800 MB.
func DefaultConfig() Config {
	return Config{
		Interval:   time.Minute,
		WarnMB:     500,
		CriticalMB: 800,
	}
}

// Watchdog is a suture.Service.
type Watchdog struct {
	cfg    Config
	read   func() Memory
	logger zerolog.Logger
}

// New creates a Watchdog. Zero fields in cfg take their defaults.
func New(cfg Config) *Watchdog {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.WarnMB == 0 {
		cfg.WarnMB = def.WarnMB
	}
	if cfg.CriticalMB == 0 {
		cfg.CriticalMB = def.CriticalMB
	}
	return &Watchdog{
		cfg:    cfg,
		read:   ReadMemory,
		logger: logging.WithComponent("watchdog"),
	}
}

// Classify compares s against the thresholds. Critical wins over warning.
func Classify(s Sample, warnMB, criticalMB uint64) Level {
	switch {
	case s.HeapUsedMB >= criticalMB:
		return LevelCritical
	case s.HeapUsedMB >= warnMB:
		return LevelWarning
	default:
		return LevelOK
	}
}

// Check takes one sample, publishes it and logs at most one line.
func (w *Watchdog) Check() Level {
	mem := w.read()
	metrics.RecordMemorySample(mem.HeapUsed, mem.HeapTotal, mem.RSS)

	s := mem.Sample()
	level := Classify(s, w.cfg.WarnMB, w.cfg.CriticalMB)

	switch level {
	case LevelCritical:
		metrics.RecordWatchdogAlert(level.String())
		w.logger.Error().
			Uint64("heap_used_mb", s.HeapUsedMB).
			Uint64("heap_total_mb", s.HeapTotalMB).
			Uint64("threshold_mb", w.cfg.CriticalMB).
			Msg("Critical memory usage, consider restarting")
	case LevelWarning:
		metrics.RecordWatchdogAlert(level.String())
		w.logger.Warn().
			Uint64("heap_used_mb", s.HeapUsedMB).
			Uint64("heap_total_mb", s.HeapTotalMB).
			Uint64("threshold_mb", w.cfg.WarnMB).
			Msg("High memory usage")
	default:
		w.logger.Debug().
			Uint64("heap_used_mb", s.HeapUsedMB).
			Uint64("heap_total_mb", s.HeapTotalMB).
			Msg("Memory sample")
	}
	return level
}

// Serve implements suture.Service. The first sample is taken one interval
// after start.
func (w *Watchdog) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check()
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (w *Watchdog) String() string {
	return "resource-watchdog"
}
