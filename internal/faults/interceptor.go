// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package faults intercepts process-level faults.
//
// Two kinds of fault reach the Interceptor:
//
//   - RejectedTask: a background task failed and nobody handled the error.
//     The fault is recorded and the process keeps running.
//   - UncaughtFault: a panic escaped every other boundary. The fault is
//     recorded, a fatal drain is requested and the process exits with
//     status 1 after a grace period.
//
// Every fault produces a Record that is handed to a Sink (the crash log).
// Sink failures are contained here and never become new faults.
package faults

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// Kind classifies a fault.
type Kind int

const (
	// RejectedTask is a failed background task. Non-fatal.
	RejectedTask Kind = iota
	// UncaughtFault is a panic no boundary recovered. Fatal.
	UncaughtFault
)

// String returns the label written to the crash log.
func (k Kind) String() string {
	switch k {
	case RejectedTask:
		return "Rejected Task"
	case UncaughtFault:
		return "Uncaught Fault"
	default:
		return "Unknown Fault"
	}
}

// MetricLabel returns the Prometheus label value for k.
func (k Kind) MetricLabel() string {
	switch k {
	case RejectedTask:
		return "rejected_task"
	case UncaughtFault:
		return "uncaught_fault"
	default:
		return "unknown"
	}
}

// Record is an immutable description of one intercepted fault.
type Record struct {
	Time    time.Time
	Kind    Kind
	Message string
	Stack   string
}

// Sink receives fault records. Write must not block and must not panic.
// Flush waits until previously written records are persisted or ctx ends.
type Sink interface {
	Write(rec Record)
	Flush(ctx context.Context) error
}

// DrainRequester asks the lifecycle owner to start draining.
// It returns false when a drain was already in progress.
type DrainRequester interface {
	RequestDrain(reason string, fatal bool) bool
}

// Config tunes the fatal path.
type Config struct {
	// GracePeriod is the delay between an uncaught fault and the forced exit.
	// Default: 5s
	GracePeriod time.Duration

	// FlushTimeout bounds the crash log flush before the forced exit.
	// Default: 1s
	FlushTimeout time.Duration

	// Exit terminates the process. Default: os.Exit
	Exit func(code int)
}

// Interceptor is the single owner of process-level fault policy.
type Interceptor struct {
	sink   Sink
	drain  DrainRequester
	cfg    Config
	logger zerolog.Logger

	exitOnce sync.Once
	timerMu  sync.Mutex
	timer    *time.Timer
}

// New creates an Interceptor. drain may be nil, in which case uncaught
// faults only schedule the forced exit.
func New(sink Sink, drain DrainRequester, cfg Config) *Interceptor {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 5 * time.Second
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = time.Second
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	return &Interceptor{
		sink:   sink,
		drain:  drain,
		cfg:    cfg,
		logger: logging.WithComponent("faults"),
	}
}

// Go runs fn in a new goroutine under the interceptor. A returned error is
// reported as a RejectedTask, a panic as an UncaughtFault. Context
// cancellation is treated as a normal stop.
func (i *Interceptor) Go(name string, fn func() error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				i.Uncaught(fmt.Errorf("task %s panicked: %v", name, r), debug.Stack())
			}
		}()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			i.Rejected(fmt.Errorf("task %s: %w", name, err))
		}
	}()
}

// Rejected reports an unhandled task failure. The process continues.
func (i *Interceptor) Rejected(err error) {
	if err == nil {
		return
	}
	i.Report(Record{
		Kind:    RejectedTask,
		Message: err.Error(),
		Stack:   string(debug.Stack()),
	})
}

// Uncaught reports a recovered panic value with the stack captured at the
// recovery site. The process will terminate.
func (i *Interceptor) Uncaught(v any, stack []byte) {
	i.Report(Record{
		Kind:    UncaughtFault,
		Message: panicMessage(v),
		Stack:   string(stack),
	})
}

// Report records rec and applies the policy for its kind.
func (i *Interceptor) Report(rec Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	i.writeSink(rec)
	metrics.RecordFault(rec.Kind.MetricLabel())

	event := i.logger.Error()
	if rec.Kind == RejectedTask {
		event = i.logger.Warn()
	}
	event.
		Str("kind", rec.Kind.MetricLabel()).
		Str("fault", rec.Message).
		Msg(rec.Kind.String())

	if rec.Kind == UncaughtFault {
		i.escalate(rec)
	}
}

// writeSink hands rec to the sink, absorbing anything the sink does wrong.
func (i *Interceptor) writeSink(rec Record) {
	if i.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordCrashLogWrite("error")
			i.logger.Error().Interface("panic", r).Msg("crash log sink panicked")
		}
	}()
	i.sink.Write(rec)
}

func (i *Interceptor) escalate(rec Record) {
	if i.drain != nil {
		i.drain.RequestDrain("uncaught fault: "+rec.Message, true)
	}

	i.exitOnce.Do(func() {
		i.logger.Error().
			Dur("grace_period", i.cfg.GracePeriod).
			Msg("process will exit after grace period")

		i.timerMu.Lock()
		i.timer = time.AfterFunc(i.cfg.GracePeriod, i.forceExit)
		i.timerMu.Unlock()
	})
}

func (i *Interceptor) forceExit() {
	if i.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), i.cfg.FlushTimeout)
		if err := i.sink.Flush(ctx); err != nil {
			i.logger.Warn().Err(err).Msg("crash log not fully flushed before exit")
		}
		cancel()
	}
	i.logger.Error().Msg("forcing exit after uncaught fault")
	i.cfg.Exit(1)
}

// ExitScheduled reports whether an uncaught fault has armed the forced exit.
func (i *Interceptor) ExitScheduled() bool {
	i.timerMu.Lock()
	defer i.timerMu.Unlock()
	return i.timer != nil
}

func panicMessage(v any) string {
	switch x := v.(type) {
	case error:
		return x.Error()
	case string:
		return x
	default:
		return fmt.Sprint(v)
	}
}
