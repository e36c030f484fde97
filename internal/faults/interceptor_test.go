// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package faults

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSink struct {
	mu       sync.Mutex
	records  []Record
	flushes  atomic.Int32
	panicOut bool
}

func (s *fakeSink) Write(rec Record) {
	if s.panicOut {
		panic("disk on fire")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *fakeSink) Flush(context.Context) error {
	s.flushes.Add(1)
	return nil
}

func (s *fakeSink) snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

type fakeDrain struct {
	calls atomic.Int32
	fatal atomic.Bool
}

func (d *fakeDrain) RequestDrain(_ string, fatal bool) bool {
	if fatal {
		d.fatal.Store(true)
	}
	return d.calls.Add(1) == 1
}

type exitRecorder struct {
	ch chan int
}

func newExitRecorder() *exitRecorder {
	return &exitRecorder{ch: make(chan int, 4)}
}

func (e *exitRecorder) exit(code int) { e.ch <- code }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestKindString(t *testing.T) {
	t.Parallel()

	if RejectedTask.String() != "Rejected Task" {
		t.Errorf("RejectedTask.String() = %q", RejectedTask.String())
	}
	if UncaughtFault.String() != "Uncaught Fault" {
		t.Errorf("UncaughtFault.String() = %q", UncaughtFault.String())
	}
	if Kind(42).MetricLabel() != "unknown" {
		t.Errorf("Kind(42).MetricLabel() = %q", Kind(42).MetricLabel())
	}
}

func TestRejectedContinues(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	drain := &fakeDrain{}
	exits := newExitRecorder()
	ic := New(sink, drain, Config{GracePeriod: 10 * time.Millisecond, Exit: exits.exit})

	ic.Rejected(errors.New("promise went nowhere"))

	recs := sink.snapshot()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Kind != RejectedTask || recs[0].Message != "promise went nowhere" {
		t.Errorf("record = %+v", recs[0])
	}
	if recs[0].Time.IsZero() || recs[0].Stack == "" {
		t.Error("record missing time or stack")
	}
	if drain.calls.Load() != 0 {
		t.Error("rejected task requested a drain")
	}
	if ic.ExitScheduled() {
		t.Error("rejected task scheduled an exit")
	}

	select {
	case code := <-exits.ch:
		t.Errorf("unexpected exit(%d)", code)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRejectedNilIgnored(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	New(sink, nil, Config{}).Rejected(nil)
	if len(sink.snapshot()) != 0 {
		t.Error("nil error produced a record")
	}
}

func TestUncaughtTerminatesAfterGrace(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	drain := &fakeDrain{}
	exits := newExitRecorder()
	ic := New(sink, drain, Config{GracePeriod: 20 * time.Millisecond, Exit: exits.exit})

	start := time.Now()
	ic.Uncaught(errors.New("nil map write"), []byte("goroutine 7 [running]:"))

	if !drain.fatal.Load() {
		t.Error("uncaught fault did not request a fatal drain")
	}
	if !ic.ExitScheduled() {
		t.Error("uncaught fault did not schedule an exit")
	}

	select {
	case code := <-exits.ch:
		if code != 1 {
			t.Errorf("exit code = %d, want 1", code)
		}
		if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
			t.Errorf("exit after %v, before grace period", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("forced exit never happened")
	}

	if sink.flushes.Load() == 0 {
		t.Error("sink not flushed before exit")
	}

	recs := sink.snapshot()
	if len(recs) != 1 || recs[0].Kind != UncaughtFault || recs[0].Stack != "goroutine 7 [running]:" {
		t.Errorf("records = %+v", recs)
	}
}

func TestUncaughtExitScheduledOnce(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	drain := &fakeDrain{}
	exits := newExitRecorder()
	ic := New(sink, drain, Config{GracePeriod: 20 * time.Millisecond, Exit: exits.exit})

	ic.Uncaught("first", nil)
	ic.Uncaught("second", nil)

	<-exits.ch
	select {
	case <-exits.ch:
		t.Error("exit called twice")
	case <-time.After(60 * time.Millisecond):
	}

	if len(sink.snapshot()) != 2 {
		t.Errorf("got %d records, want both faults recorded", len(sink.snapshot()))
	}
	if drain.calls.Load() != 2 {
		t.Errorf("drain requested %d times, want 2 (coordinator ignores the second)", drain.calls.Load())
	}
}

func TestGo(t *testing.T) {
	t.Parallel()

	t.Run("error is rejected task", func(t *testing.T) {
		t.Parallel()
		sink := &fakeSink{}
		ic := New(sink, &fakeDrain{}, Config{Exit: func(int) {}})

		ic.Go("refresh", func() error { return errors.New("upstream 502") })

		waitFor(t, func() bool { return len(sink.snapshot()) == 1 })
		rec := sink.snapshot()[0]
		if rec.Kind != RejectedTask || !strings.Contains(rec.Message, "refresh") {
			t.Errorf("record = %+v", rec)
		}
	})

	t.Run("panic is uncaught fault", func(t *testing.T) {
		t.Parallel()
		sink := &fakeSink{}
		drain := &fakeDrain{}
		ic := New(sink, drain, Config{GracePeriod: time.Hour, Exit: func(int) {}})

		ic.Go("worker", func() error { panic("index out of range") })

		waitFor(t, func() bool { return len(sink.snapshot()) == 1 })
		rec := sink.snapshot()[0]
		if rec.Kind != UncaughtFault || !strings.Contains(rec.Message, "index out of range") {
			t.Errorf("record = %+v", rec)
		}
		if !strings.Contains(rec.Stack, "goroutine") {
			t.Error("stack not captured")
		}
		if !drain.fatal.Load() {
			t.Error("panicking task did not request fatal drain")
		}
	})

	t.Run("cancellation is not a fault", func(t *testing.T) {
		t.Parallel()
		sink := &fakeSink{}
		ic := New(sink, nil, Config{})
		done := make(chan struct{})

		ic.Go("poller", func() error {
			defer close(done)
			return context.Canceled
		})

		<-done
		time.Sleep(10 * time.Millisecond)
		if len(sink.snapshot()) != 0 {
			t.Error("context.Canceled was recorded as a fault")
		}
	})
}

func TestSinkPanicContained(t *testing.T) {
	t.Parallel()

	ic := New(&fakeSink{panicOut: true}, nil, Config{})

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("sink panic escaped: %v", r)
		}
	}()
	ic.Rejected(errors.New("x"))
}

func TestInstall(t *testing.T) {
	t.Cleanup(func() {
		installMu.Lock()
		installed = nil
		installMu.Unlock()
		debug.SetTraceback("single")
		_ = debug.SetCrashOutput(nil, debug.CrashOptions{})
	})

	path := filepath.Join(t.TempDir(), "crashes.log")
	ic := New(&fakeSink{}, nil, Config{})

	if err := Install(ic, path); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	installMu.Lock()
	got := installed
	installMu.Unlock()
	if got != ic {
		t.Error("Install() did not register the interceptor")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("crash log not created: %v", err)
	}
	if err := Install(New(nil, nil, Config{}), path); !errors.Is(err, ErrAlreadyInstalled) {
		t.Errorf("second Install() error = %v, want ErrAlreadyInstalled", err)
	}
}
