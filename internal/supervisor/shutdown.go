// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// State is the process lifecycle state. It only moves forward.
type State int32

const (
	// Running accepts and serves requests.
	Running State = iota
	// Draining has stopped accepting connections and waits for in-flight requests.
	Draining
	// Terminated is final; the process is about to exit.
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// StateView is the read-only side of the Coordinator.
type StateView interface {
	State() State
}

// Runnable is anything the Coordinator can start and later cancel.
// *SupervisorTree satisfies it.
type Runnable interface {
	ServeBackground(ctx context.Context) <-chan error
}

// DefaultDrainTimeout bounds the drain when none is configured.
const DefaultDrainTimeout = 10 * time.Second

// Coordinator owns the Running → Draining → Terminated state machine.
//
// Draining starts on SIGINT/SIGTERM or on RequestDrain. The drain deadline
// starts at that moment. The supervised services are cancelled once the
// optional readiness delay has passed; whichever of their exit and the
// deadline comes first decides the exit code.
type Coordinator struct {
	state          atomic.Int32
	drainTimeout   time.Duration
	readinessDelay time.Duration
	logger         zerolog.Logger

	mu         sync.Mutex
	draining   chan struct{}
	reason     string
	fatal      bool
	drainStart time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithReadinessDelay keeps the services running for d after Draining starts,
// so readiness checks observe the drain before the listener closes. The
// delay counts against the drain deadline. Zero, the default, closes the
// listener immediately.
func WithReadinessDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.readinessDelay = d
		}
	}
}

// NewCoordinator creates a Coordinator in the Running state.
func NewCoordinator(drainTimeout time.Duration, opts ...CoordinatorOption) *Coordinator {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	c := &Coordinator{
		drainTimeout: drainTimeout,
		logger:       logging.WithComponent("shutdown"),
		draining:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	metrics.SetShutdownState(int(Running))
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Draining is closed when the coordinator leaves Running.
func (c *Coordinator) Draining() <-chan struct{} {
	return c.draining
}

// RequestDrain moves Running to Draining. fatal forces exit status 1 even if
// the drain completes in time. It returns false, and changes nothing, when
// the coordinator has already left Running.
func (c *Coordinator) RequestDrain(reason string, fatal bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != Running {
		c.logger.Info().
			Str("reason", reason).
			Str("state", c.State().String()).
			Msg("Shutdown already in progress, ignoring")
		return false
	}

	c.reason = reason
	c.fatal = fatal
	c.drainStart = time.Now()
	c.state.Store(int32(Draining))
	metrics.SetShutdownState(int(Draining))
	close(c.draining)

	c.logger.Warn().
		Str("reason", reason).
		Bool("fatal", fatal).
		Dur("deadline", c.drainTimeout).
		Dur("readiness_delay", c.readinessDelay).
		Msg("Shutting down gracefully")
	return true
}

// Launcher starts a named background task. *faults.Interceptor satisfies it.
type Launcher interface {
	Go(name string, fn func() error)
}

// NotifySignals turns SIGINT and SIGTERM into drain requests until the
// returned stop function is called. Repeated signals are logged and ignored.
// The signal loop runs under l, or on a plain goroutine when l is nil.
func (c *Coordinator) NotifySignals(l Launcher) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	loop := func() error {
		for {
			select {
			case sig := <-sigCh:
				c.RequestDrain("received "+sig.String(), false)
			case <-done:
				return nil
			}
		}
	}
	if l != nil {
		l.Go("signal-handler", loop)
	} else {
		go func() { _ = loop() }()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
		})
	}
}

// Run starts svc and blocks until the process should exit, returning the
// exit code:
//
//   - 0 when a non-fatal drain finishes before the deadline
//   - 1 when the drain was fatal, the deadline expired, or svc stopped
//     while still Running
//
// Cancelling ctx is treated as a non-fatal drain request.
func (c *Coordinator) Run(ctx context.Context, svc Runnable) int {
	svcCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := svc.ServeBackground(svcCtx)

	select {
	case <-c.draining:
	case <-ctx.Done():
		c.RequestDrain("context canceled", false)
	case err := <-errCh:
		// svc stopped on its own; nothing left to drain.
		if !c.RequestDrain("services stopped unexpectedly", true) {
			// A drain was requested concurrently; honour it below.
			return c.finishDrain(cancel, nil)
		}
		c.logger.Error().Err(err).Msg("Supervised services stopped while running")
		c.terminate()
		return 1
	}

	return c.finishDrain(cancel, errCh)
}

// finishDrain waits out the readiness delay, cancels the services and races
// their exit against the deadline. A nil errCh means the services have
// already stopped.
func (c *Coordinator) finishDrain(cancel context.CancelFunc, errCh <-chan error) int {
	deadline := time.NewTimer(c.drainTimeout)
	defer deadline.Stop()

	if c.readinessDelay > 0 && errCh != nil {
		delay := time.NewTimer(c.readinessDelay)
		select {
		case <-delay.C:
		case <-errCh:
			errCh = nil
		case <-deadline.C:
			delay.Stop()
			cancel()
			return c.deadlineExpired()
		}
		delay.Stop()
	}

	cancel()

	if errCh != nil {
		select {
		case <-errCh:
		case <-deadline.C:
			return c.deadlineExpired()
		}
	}

	c.terminate()

	c.mu.Lock()
	fatal := c.fatal
	c.mu.Unlock()
	if fatal {
		c.logger.Error().Msg("Drain complete after fatal fault")
		return 1
	}
	c.logger.Info().Msg("HTTP server closed")
	return 0
}

func (c *Coordinator) deadlineExpired() int {
	c.logger.Error().
		Dur("deadline", c.drainTimeout).
		Msg("Could not close connections in time, forcing shutdown")
	c.terminate()
	return 1
}

func (c *Coordinator) terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == Terminated {
		return
	}
	c.state.Store(int32(Terminated))
	metrics.SetShutdownState(int(Terminated))
	if !c.drainStart.IsZero() {
		metrics.DrainDuration.Observe(time.Since(c.drainStart).Seconds())
	}
}
