// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package crashlog appends fault records to a plain-text crash log.
//
// Each record becomes one block:
//
//	[2026-01-02T15:04:05.000Z] Uncaught Fault: assignment to entry in nil map
//	goroutine 12 [running]:
//	...
//
// followed by a blank line. The file is opened in append mode for every
// block, so external rotation is picked up without coordination. Writes are
// queued and performed by a single goroutine; a full queue drops the record
// (counted and logged) rather than blocking the caller.
package crashlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/faults"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("crash log closed")

// TimeFormat is the block timestamp layout (ISO-8601, UTC, milliseconds).
const TimeFormat = "2006-01-02T15:04:05.000Z"

// DefaultBufferSize is used when New receives a non-positive size.
const DefaultBufferSize = 256

type entry struct {
	rec     faults.Record
	flushed chan struct{} // non-nil marks a flush barrier
}

// Sink implements faults.Sink on top of an append-only file.
type Sink struct {
	path   string
	queue  chan entry
	done   chan struct{}
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ faults.Sink = (*Sink)(nil)

// New starts the writer goroutine. The file is created on the first record.
func New(path string, bufferSize int) *Sink {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	s := &Sink{
		path:   path,
		queue:  make(chan entry, bufferSize),
		done:   make(chan struct{}),
		logger: logging.WithComponent("crashlog").With().Str("path", path).Logger(),
	}
	go s.run()
	return s
}

// Path returns the crash log location.
func (s *Sink) Path() string {
	return s.path
}

// Write queues rec without blocking. Records written after Close, or while the
// queue is full, are dropped.
func (s *Sink) Write(rec faults.Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop(rec, "closed")
		return
	}
	select {
	case s.queue <- entry{rec: rec}:
	default:
		s.drop(rec, "queue full")
	}
}

// Flush blocks until every record queued before the call has been appended.
func (s *Sink) Flush(ctx context.Context) error {
	barrier := make(chan struct{})

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.queue <- entry{flushed: barrier}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits for the queue to drain.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.queue {
		if e.flushed != nil {
			close(e.flushed)
			continue
		}
		s.append(e.rec)
	}
}

// append writes one block. Failures are logged and counted only.
func (s *Sink) append(rec faults.Record) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordCrashLogWrite("error")
			s.logger.Error().Interface("panic", r).Msg("crash log writer panicked")
		}
	}()

	if err := appendBlock(s.path, Format(rec)); err != nil {
		metrics.RecordCrashLogWrite("error")
		s.logger.Error().Err(err).Str("fault", rec.Message).Msg("failed to append to crash log")
		return
	}
	metrics.RecordCrashLogWrite("ok")
}

func (s *Sink) drop(rec faults.Record, reason string) {
	metrics.RecordCrashLogWrite("dropped")
	s.logger.Warn().
		Str("reason", reason).
		Str("kind", rec.Kind.MetricLabel()).
		Str("fault", rec.Message).
		Msg("crash log record dropped")
}

func appendBlock(path, block string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if _, err := f.WriteString(block); err != nil {
		_ = f.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Format renders rec as a crash log block.
func Format(rec faults.Record) string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(rec.Time.UTC().Format(TimeFormat))
	b.WriteString("] ")
	b.WriteString(rec.Kind.String())
	b.WriteString(": ")
	b.WriteString(rec.Message)
	b.WriteByte('\n')
	b.WriteString(strings.TrimRight(rec.Stack, "\n"))
	b.WriteString("\n\n")
	return b.String()
}
