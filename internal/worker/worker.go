package worker

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/queue/memory"
	"github.com/JakeFAU/spider/internal/task"
)

// Source is the blocking pop side of the shared queue.
type Source interface {
	Dequeue(ctx context.Context) (Item, error)
}

// Observer receives per-task notifications. Pools use it for metrics.
type Observer interface {
	TaskStarted(workerID int)
	TaskFinished(workerID int, res task.Result)
}

// LoopWorker consumes queue items until it receives the shutdown signal.
type LoopWorker struct {
	id       int
	source   Source
	observer Observer
	logger   *zap.Logger
	state    atomicState
	executed atomic.Int64
	done     chan struct{}
}

// NewLoopWorker constructs a LoopWorker. observer may be nil.
func NewLoopWorker(id int, source Source, observer Observer, logger *zap.Logger) *LoopWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoopWorker{
		id:       id,
		source:   source,
		observer: observer,
		logger:   logger.With(zap.Int("worker_id", id)),
		done:     make(chan struct{}),
	}
}

// ID returns the worker id.
func (w *LoopWorker) ID() int { return w.id }

// State returns the current lifecycle state.
func (w *LoopWorker) State() State { return w.state.load() }

// Executed returns the number of task items processed.
func (w *LoopWorker) Executed() int64 { return w.executed.Load() }

// Done is closed when Run returns.
func (w *LoopWorker) Done() <-chan struct{} { return w.done }

// Run blocks, consuming queue items until the shutdown signal, queue
// closure, or ctx cancellation. Task failures never end the loop.
func (w *LoopWorker) Run(ctx context.Context) {
	defer func() {
		w.state.store(StateDead)
		close(w.done)
		w.logger.Info("worker finished", zap.Int64("executed", w.executed.Load()))
	}()
	w.logger.Info("worker started")

	for {
		item, err := w.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		if item.IsShutdown() {
			w.state.store(StateTerminating)
			return
		}
		w.process(ctx, item)
	}
}

func (w *LoopWorker) process(ctx context.Context, item Item) {
	t, ok := item.Task()
	if !ok {
		// invalid item: surface it the same way as a nil function reference
		t = task.Task{}
	}
	w.state.advance(StateRunning)
	if w.observer != nil {
		w.observer.TaskStarted(w.id)
	}

	res := Execute(ctx, w.id, t, w.logger)
	w.executed.Add(1)

	if w.observer != nil {
		w.observer.TaskFinished(w.id, res)
	}
	deliver(w.id, t, res, w.logger)
	w.state.advance(StateIdle)
}
