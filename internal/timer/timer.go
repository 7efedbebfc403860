// Package timer invokes a handler periodically on its own goroutine.
//
// A Timer starts either immediately (invoke, then wait) or deferred (wait,
// then invoke). Handler failures and panics are logged and the loop carries
// on; only Shutdown or cancellation of the Start context ends it. The wait
// between invocations is interruptible, so Shutdown returns promptly even in
// the middle of a long interval.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/metrics"
)

// DefaultInterval matches the re-crawl cadence of the sweep.
const DefaultInterval = 20 * time.Minute

// Errors returned by Start.
var (
	ErrAlreadyStarted = errors.New("timer already started")
	ErrCancelled      = errors.New("timer cancelled")
)

// Handler is the periodic callback.
type Handler func(ctx context.Context) error

// Status is the lifecycle phase of a Timer.
type Status int32

// Timer lifecycle: Stopped -> Running -> Cancelled.
const (
	StatusStopped Status = iota
	StatusRunning
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Option configures a Timer.
type Option func(*Timer)

// WithInterval sets the pause between invocations. Non-positive values are
// ignored.
func WithInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval.Store(int64(d))
		}
	}
}

// WithDeferred delays the first invocation by one interval.
func WithDeferred(deferred bool) Option {
	return func(t *Timer) { t.deferred = deferred }
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Timer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Timer repeatedly calls a Handler. Invocations never overlap.
type Timer struct {
	handler  Handler
	deferred bool
	interval atomic.Int64
	logger   *zap.Logger

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
	runs   atomic.Int64
}

// New builds a stopped Timer around handler.
func New(handler Handler, opts ...Option) *Timer {
	t := &Timer{
		handler: handler,
		logger:  zap.NewNop(),
		done:    make(chan struct{}),
	}
	t.interval.Store(int64(DefaultInterval))
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the loop. The loop also ends when ctx is cancelled.
func (t *Timer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case StatusRunning:
		return ErrAlreadyStarted
	case StatusCancelled:
		return ErrCancelled
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.status = StatusRunning
	go t.loop(loopCtx)
	t.logger.Info("timer started",
		zap.Duration("interval", t.Interval()),
		zap.Bool("deferred", t.deferred))
	return nil
}

// SetInterval changes the pause between invocations. It takes effect from
// the next wait.
func (t *Timer) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %s", d)
	}
	t.interval.Store(int64(d))
	t.logger.Info("timer interval changed", zap.Duration("interval", d))
	return nil
}

// Interval returns the current pause between invocations.
func (t *Timer) Interval() time.Duration {
	return time.Duration(t.interval.Load())
}

// Runs returns how many times the handler has been invoked.
func (t *Timer) Runs() int64 {
	return t.runs.Load()
}

// Status returns the lifecycle phase.
func (t *Timer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Shutdown requests the loop to stop. It does not wait; use Wait for that.
// Repeated calls are safe.
func (t *Timer) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case StatusCancelled:
		return
	case StatusStopped:
		// never started: nothing will close done
		close(t.done)
	}
	t.status = StatusCancelled
	if t.cancel != nil {
		t.cancel()
	}
}

// Wait blocks until the loop has exited, or returns at once if the timer
// was never started.
func (t *Timer) Wait() {
	t.mu.Lock()
	status := t.status
	t.mu.Unlock()
	if status == StatusStopped {
		return
	}
	<-t.done
}

func (t *Timer) loop(ctx context.Context) {
	defer func() {
		t.mu.Lock()
		t.status = StatusCancelled
		t.mu.Unlock()
		close(t.done)
		t.logger.Info("timer stopped", zap.Int64("runs", t.runs.Load()))
	}()

	if t.deferred && !t.sleep(ctx) {
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}
		t.invoke(ctx)
		if !t.sleep(ctx) {
			return
		}
	}
}

// sleep waits one interval and reports whether the loop should continue.
func (t *Timer) sleep(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	wait := time.NewTimer(t.Interval())
	defer wait.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-wait.C:
		return true
	}
}

func (t *Timer) invoke(ctx context.Context) {
	t.runs.Add(1)
	start := time.Now()
	err := t.call(ctx)
	if err != nil {
		metrics.ObserveTimerRun("failure")
		t.logger.Error("timer handler failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}
	metrics.ObserveTimerRun("success")
	t.logger.Debug("timer handler finished", zap.Duration("duration", time.Since(start)))
}

func (t *Timer) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("timer handler panic: %v", r)
		}
	}()
	if t.handler == nil {
		return errors.New("timer handler is nil")
	}
	return t.handler(ctx)
}
