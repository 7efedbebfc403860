package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/metrics"
	"github.com/JakeFAU/spider/internal/queue/memory"
	"github.com/JakeFAU/spider/internal/task"
	"github.com/JakeFAU/spider/internal/worker"
)

// FixedConfig controls a Fixed pool.
type FixedConfig struct {
	// Name labels metrics and logs. Defaults to "fixed".
	Name string
	// Workers defaults to DefaultWorkers() when <= 0.
	Workers int
	// ShutdownTimeout bounds the cooperative drain before workers are
	// force-terminated.
	ShutdownTimeout time.Duration
	// ForceGrace bounds the wait after forced termination.
	ForceGrace time.Duration
	Logger     *zap.Logger
}

// Fixed is a static set of loop workers sharing one unbounded queue.
type Fixed struct {
	name    string
	cfg     FixedConfig
	queue   *memory.Queue[worker.Item]
	workers map[int]*worker.LoopWorker
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger

	mu     sync.Mutex
	status Status
}

// NewFixed spawns and starts cfg.Workers loop workers.
func NewFixed(cfg FixedConfig) *Fixed {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.ForceGrace <= 0 {
		cfg.ForceGrace = defaultForceGrace
	}
	if cfg.Name == "" {
		cfg.Name = "fixed"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("pool", cfg.Name))

	ctx, cancel := context.WithCancel(context.Background())
	p := &Fixed{
		name:    cfg.Name,
		cfg:     cfg,
		queue:   memory.NewQueue[worker.Item](),
		workers: make(map[int]*worker.LoopWorker, cfg.Workers),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		status:  StatusRunning,
	}
	observer := metricsObserver{pool: cfg.Name}
	for id := 1; id <= cfg.Workers; id++ {
		w := worker.NewLoopWorker(id, p.queue, observer, logger)
		p.workers[id] = w
		go w.Run(ctx)
	}
	logger.Info("pool started", zap.Int("workers", cfg.Workers))
	return p
}

// Submit enqueues t. It returns immediately; results are delivered only
// through the task callbacks.
func (p *Fixed) Submit(ctx context.Context, t task.Task) error {
	p.mu.Lock()
	status := p.status
	p.mu.Unlock()
	if status != StatusRunning {
		return ErrPoolClosed
	}
	if err := p.queue.Enqueue(ctx, worker.TaskItem(t)); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	metrics.SetQueueDepth(p.name, p.queue.Len())
	p.logger.Debug("task submitted", zap.String("task", t.Label()))
	return nil
}

// Shutdown sends one shutdown item per worker and waits for all of them to
// exit. Tasks queued before the call still run. When the drain exceeds
// ShutdownTimeout or ctx ends, workers are force-terminated by canceling
// their context; any worker still alive after ForceGrace is reported through
// ErrWorkersAbandoned. A second call returns ErrPoolClosed.
func (p *Fixed) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.status != StatusRunning {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.status = StatusClosing
	p.mu.Unlock()

	p.logger.Info("pool shutdown started")
	for range p.workers {
		if err := p.queue.Enqueue(context.Background(), worker.ShutdownItem()); err != nil {
			p.logger.Error("enqueue shutdown signal failed", zap.Error(err))
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, p.cfg.ShutdownTimeout)
	defer cancel()
	alive := p.waitWorkers(drainCtx)

	var err error
	if len(alive) > 0 {
		p.logger.Warn("cooperative shutdown timed out; terminating workers", zap.Ints("worker_ids", alive))
		p.cancel()
		graceCtx, graceCancel := context.WithTimeout(context.Background(), p.cfg.ForceGrace)
		alive = p.waitWorkers(graceCtx)
		graceCancel()
		if len(alive) > 0 {
			err = fmt.Errorf("%w: %v", ErrWorkersAbandoned, alive)
		}
	}
	p.cancel()
	p.queue.Close()
	metrics.SetQueueDepth(p.name, 0)

	p.mu.Lock()
	p.status = StatusClosed
	p.mu.Unlock()
	p.logger.Info("pool shutdown finished")
	return err
}

// waitWorkers blocks until every worker is done or ctx ends, returning the
// ids of workers still alive.
func (p *Fixed) waitWorkers(ctx context.Context) []int {
	for _, w := range p.workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
		}
	}
	var alive []int
	for id, w := range p.workers {
		select {
		case <-w.Done():
		default:
			alive = append(alive, id)
		}
	}
	sort.Ints(alive)
	return alive
}

// State returns a best-effort snapshot. A nil pool reports StatusUnknown.
func (p *Fixed) State() State {
	if p == nil {
		return Unknown()
	}
	p.mu.Lock()
	status := p.status
	p.mu.Unlock()

	st := State{
		Kind:     "fixed",
		Status:   status,
		Capacity: len(p.workers),
		Queued:   p.queue.Len(),
		Workers:  make([]WorkerStatus, 0, len(p.workers)),
	}
	for id, w := range p.workers {
		ws := WorkerStatus{ID: id, State: w.State(), Executed: w.Executed()}
		if ws.State == worker.StateRunning {
			st.InFlight++
		}
		st.Workers = append(st.Workers, ws)
	}
	sort.Slice(st.Workers, func(i, j int) bool { return st.Workers[i].ID < st.Workers[j].ID })
	return st
}
