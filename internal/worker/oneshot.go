package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/task"
)

// OneShotWorker runs exactly one task on its own goroutine and exits.
type OneShotWorker struct {
	id         int
	task       task.Task
	observer   Observer
	logger     *zap.Logger
	state      atomicState
	terminated atomic.Bool
	onExit     func(id int)

	startOnce sync.Once
	cancelMu  sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewOneShotWorker binds t to a worker. onExit is called exactly once after
// the task finished (or was abandoned), before Done is closed; it may be nil.
func NewOneShotWorker(id int, t task.Task, observer Observer, onExit func(id int), logger *zap.Logger) *OneShotWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OneShotWorker{
		id:       id,
		task:     t,
		observer: observer,
		onExit:   onExit,
		logger:   logger.With(zap.Int("worker_id", id)),
		done:     make(chan struct{}),
	}
}

// ID returns the worker id.
func (w *OneShotWorker) ID() int { return w.id }

// State returns the current lifecycle state.
func (w *OneShotWorker) State() State { return w.state.load() }

// Done is closed once the worker has exited.
func (w *OneShotWorker) Done() <-chan struct{} { return w.done }

// Start launches the task. Subsequent calls are no-ops.
func (w *OneShotWorker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		w.cancelMu.Lock()
		w.cancel = cancel
		w.cancelMu.Unlock()
		if w.terminated.Load() {
			cancel()
		}
		w.state.advance(StateRunning)
		go w.run(runCtx, cancel)
	})
}

// Terminate abandons the task: its context is canceled and no callback will
// fire. It does not wait; use Done.
func (w *OneShotWorker) Terminate() {
	if !w.terminated.CompareAndSwap(false, true) {
		return
	}
	if w.state.load() != StateDead {
		w.state.store(StateTerminating)
	}
	w.cancelMu.Lock()
	cancel := w.cancel
	w.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (w *OneShotWorker) run(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	w.logger.Info("worker start", zap.String("task", w.task.Label()))
	if w.observer != nil {
		w.observer.TaskStarted(w.id)
	}

	res := Execute(ctx, w.id, w.task, w.logger)

	if w.observer != nil {
		w.observer.TaskFinished(w.id, res)
	}
	if w.terminated.Load() {
		w.logger.Info("worker terminated; task abandoned", zap.String("task", w.task.Label()))
	} else {
		deliver(w.id, w.task, res, w.logger)
		w.logger.Info("worker end", zap.String("task", w.task.Label()), zap.String("outcome", res.Outcome()))
	}

	w.state.store(StateDead)
	if w.onExit != nil {
		w.onExit(w.id)
	}
	close(w.done)
}
