// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package supervisor

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/warden/internal/metrics"
)

// fakeRunnable stops stopDelay after its context is canceled, or never when
// stopDelay is negative.
type fakeRunnable struct {
	stopDelay time.Duration
	exitEarly error

	mu         sync.Mutex
	started    bool
	canceledAt time.Time
}

func (f *fakeRunnable) canceled() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceledAt
}

func (f *fakeRunnable) ServeBackground(ctx context.Context) <-chan error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()

	ch := make(chan error, 1)
	go func() {
		if f.exitEarly != nil {
			ch <- f.exitEarly
			return
		}
		<-ctx.Done()
		f.mu.Lock()
		f.canceledAt = time.Now()
		f.mu.Unlock()
		if f.stopDelay < 0 {
			return
		}
		time.Sleep(f.stopDelay)
		ch <- ctx.Err()
	}()
	return ch
}

func runAsync(c *Coordinator, ctx context.Context, r Runnable) <-chan int {
	out := make(chan int, 1)
	go func() { out <- c.Run(ctx, r) }()
	return out
}

func waitExit(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case code := <-ch:
		return code
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
		return -1
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	for state, want := range map[State]string{
		Running:    "running",
		Draining:   "draining",
		Terminated: "terminated",
		State(9):   "unknown",
	} {
		if state.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", state, state.String(), want)
		}
	}
}

func TestRequestDrainIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(time.Second)
	if c.State() != Running {
		t.Fatalf("initial state = %v", c.State())
	}

	if !c.RequestDrain("first", false) {
		t.Error("first RequestDrain returned false")
	}
	if c.RequestDrain("second", true) {
		t.Error("second RequestDrain returned true")
	}
	if c.State() != Draining {
		t.Errorf("state = %v, want draining", c.State())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reason != "first" || c.fatal {
		t.Errorf("second request changed the drain: reason=%q fatal=%v", c.reason, c.fatal)
	}

	select {
	case <-c.Draining():
	default:
		t.Error("Draining channel not closed")
	}
}

func TestRunGracefulDrain(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(time.Second)
	done := runAsync(c, context.Background(), &fakeRunnable{stopDelay: 20 * time.Millisecond})

	c.RequestDrain("test", false)

	if code := waitExit(t, done); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if c.State() != Terminated {
		t.Errorf("state = %v, want terminated", c.State())
	}
}

func TestRunFatalDrain(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(time.Second)
	done := runAsync(c, context.Background(), &fakeRunnable{})

	c.RequestDrain("uncaught fault: boom", true)

	if code := waitExit(t, done); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestRunDeadlineExpires(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(50 * time.Millisecond)
	done := runAsync(c, context.Background(), &fakeRunnable{stopDelay: -1})

	start := time.Now()
	c.RequestDrain("test", false)

	if code := waitExit(t, done); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("deadline fired after %v, before 50ms", elapsed)
	}
	if c.State() != Terminated {
		t.Errorf("state = %v, want terminated", c.State())
	}
}

func TestRunReadinessDelay(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(time.Second, WithReadinessDelay(80*time.Millisecond))
	svc := &fakeRunnable{}
	done := runAsync(c, context.Background(), svc)

	start := time.Now()
	c.RequestDrain("test", false)

	time.Sleep(20 * time.Millisecond)
	if !svc.canceled().IsZero() {
		t.Error("services canceled before the readiness delay elapsed")
	}
	if c.State() != Draining {
		t.Errorf("state during readiness delay = %v, want draining", c.State())
	}

	if code := waitExit(t, done); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if waited := svc.canceled().Sub(start); waited < 80*time.Millisecond {
		t.Errorf("services canceled after %v, want at least 80ms", waited)
	}
}

func TestRunReadinessDelayCountsAgainstDeadline(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(50*time.Millisecond, WithReadinessDelay(time.Second))
	done := runAsync(c, context.Background(), &fakeRunnable{stopDelay: -1})

	start := time.Now()
	c.RequestDrain("test", false)

	if code := waitExit(t, done); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("exit after %v, the readiness delay outlived the deadline", elapsed)
	}
}

func TestRunReadinessDelayServicesStopEarly(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(time.Second, WithReadinessDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(c, ctx, stoppingRunnable{stop: c.Draining()})

	c.RequestDrain("test", false)

	if code := waitExit(t, done); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

// stoppingRunnable exits by itself as soon as the drain starts.
type stoppingRunnable struct {
	stop <-chan struct{}
}

func (s stoppingRunnable) ServeBackground(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() {
		select {
		case <-s.stop:
		case <-ctx.Done():
		}
		ch <- nil
	}()
	return ch
}

func TestRunServicesStopWhileRunning(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(time.Second)
	done := runAsync(c, context.Background(), &fakeRunnable{exitEarly: errors.New("listener died")})

	if code := waitExit(t, done); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if c.State() != Terminated {
		t.Errorf("state = %v, want terminated", c.State())
	}
}

func TestRunContextCancel(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(c, ctx, &fakeRunnable{})

	cancel()

	if code := waitExit(t, done); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestStateIsMonotonic(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(time.Second)
	done := runAsync(c, context.Background(), &fakeRunnable{})
	c.RequestDrain("test", false)
	waitExit(t, done)

	if c.RequestDrain("late", false) {
		t.Error("RequestDrain succeeded after termination")
	}
	if c.State() != Terminated {
		t.Errorf("state regressed to %v", c.State())
	}
}

// TestNotifySignals sends a real SIGTERM to the test process. It must not run
// in parallel with anything else that installs signal handlers.
func TestNotifySignals(t *testing.T) {
	c := NewCoordinator(time.Second)
	stop := c.NotifySignals(nil)
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-c.Draining():
	case <-time.After(2 * time.Second):
		t.Fatal("SIGTERM did not start draining")
	}

	// A second signal is a no-op.
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("kill: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if c.State() != Draining {
		t.Errorf("state = %v, want draining", c.State())
	}
}

// recordingLauncher runs tasks on goroutines and keeps their names and results.
type recordingLauncher struct {
	mu      sync.Mutex
	names   []string
	results chan error
}

func (l *recordingLauncher) Go(name string, fn func() error) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
	go func() { l.results <- fn() }()
}

func TestNotifySignalsRunsUnderLauncher(t *testing.T) {
	l := &recordingLauncher{results: make(chan error, 1)}
	c := NewCoordinator(time.Second)
	stop := c.NotifySignals(l)

	l.mu.Lock()
	names := append([]string(nil), l.names...)
	l.mu.Unlock()
	if len(names) != 1 || names[0] != "signal-handler" {
		t.Fatalf("launched tasks = %v, want [signal-handler]", names)
	}

	stop()
	stop()
	select {
	case err := <-l.results:
		if err != nil {
			t.Errorf("signal loop returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("signal loop did not stop")
	}
	if c.State() != Running {
		t.Errorf("state = %v, want running", c.State())
	}
}

func TestShutdownStateMetric(t *testing.T) {
	c := NewCoordinator(time.Second)
	if got := testutil.ToFloat64(metrics.ShutdownState); got != float64(Running) {
		t.Errorf("gauge = %v, want running", got)
	}
	c.RequestDrain("metric", false)
	if got := testutil.ToFloat64(metrics.ShutdownState); got != float64(Draining) {
		t.Errorf("gauge = %v, want draining", got)
	}
}
