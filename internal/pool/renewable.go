package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/spider/internal/task"
	"github.com/JakeFAU/spider/internal/worker"
)

// Overflow selects what Submit does when every worker slot is taken.
type Overflow int

// Overflow policies.
const (
	// OverflowBlock makes Submit wait for a free slot.
	OverflowBlock Overflow = iota
	// OverflowReject makes Submit fail fast with ErrPoolFull.
	OverflowReject
)

// ParseOverflow maps a config string onto an Overflow policy.
func ParseOverflow(s string) (Overflow, error) {
	switch s {
	case "", "block":
		return OverflowBlock, nil
	case "reject":
		return OverflowReject, nil
	default:
		return OverflowBlock, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// RenewableConfig controls a Renewable pool.
type RenewableConfig struct {
	// Name labels metrics and logs. Defaults to "renewable".
	Name string
	// MaxWorkers bounds simultaneously running one-shot workers. Defaults
	// to DefaultWorkers() when <= 0.
	MaxWorkers int
	Overflow   Overflow
	// ShutdownGrace bounds how long Shutdown waits for terminated workers
	// when the caller's ctx has no deadline.
	ShutdownGrace time.Duration
	Logger        *zap.Logger
}

// Renewable runs every task on a fresh one-shot worker.
type Renewable struct {
	name     string
	cfg      RenewableConfig
	sem      *semaphore.Weighted
	observer worker.Observer
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger

	mu      sync.Mutex
	workers map[int]*worker.OneShotWorker
	lastID  int
	status  Status
}

// NewRenewable constructs an empty pool; workers are created on Submit.
func NewRenewable(cfg RenewableConfig) *Renewable {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultWorkers()
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultForceGrace
	}
	if cfg.Name == "" {
		cfg.Name = "renewable"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Renewable{
		name:     cfg.Name,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		observer: metricsObserver{pool: cfg.Name},
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With(zap.String("pool", cfg.Name)),
		workers:  make(map[int]*worker.OneShotWorker),
		status:   StatusRunning,
	}
}

// Submit starts t on a new one-shot worker once a slot is free.
func (p *Renewable) Submit(ctx context.Context, t task.Task) error {
	if p.closed() {
		return ErrPoolClosed
	}
	if err := p.acquire(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	if p.status != StatusRunning {
		p.mu.Unlock()
		p.sem.Release(1)
		return ErrPoolClosed
	}
	p.lastID++
	id := p.lastID
	w := worker.NewOneShotWorker(id, t, p.observer, p.reap, p.logger)
	p.workers[id] = w
	p.mu.Unlock()

	p.logger.Debug("worker registered", zap.Int("worker_id", id), zap.String("task", t.Label()))
	w.Start(p.ctx)
	return nil
}

func (p *Renewable) acquire(ctx context.Context) error {
	if p.cfg.Overflow == OverflowReject {
		if !p.sem.TryAcquire(1) {
			return ErrPoolFull
		}
		return nil
	}
	// wake blocked submitters when the pool shuts down
	acqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()
	if err := p.sem.Acquire(acqCtx, 1); err != nil {
		if p.closed() {
			return ErrPoolClosed
		}
		return fmt.Errorf("wait for worker slot: %w", err)
	}
	return nil
}

// reap removes a finished worker from the registry and frees its slot.
func (p *Renewable) reap(id int) {
	p.mu.Lock()
	delete(p.workers, id)
	p.mu.Unlock()
	p.sem.Release(1)
	p.logger.Debug("worker reaped", zap.Int("worker_id", id))
}

func (p *Renewable) closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status != StatusRunning
}

// Shutdown terminates every registered worker without draining, waits for
// each to exit, and clears the registry. Abandoned tasks fire no callbacks.
// Workers that outlive ctx (or ShutdownGrace when ctx has no deadline) are
// reported through ErrWorkersAbandoned. A second call returns ErrPoolClosed.
func (p *Renewable) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.status != StatusRunning {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.status = StatusClosing
	live := make([]*worker.OneShotWorker, 0, len(p.workers))
	for _, w := range p.workers {
		live = append(live, w)
	}
	p.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ShutdownGrace)
		defer cancel()
	}

	sort.Slice(live, func(i, j int) bool { return live[i].ID() < live[j].ID() })
	var abandoned []int
	for _, w := range live {
		p.logger.Info("worker served its turn; retiring", zap.Int("worker_id", w.ID()))
		w.Terminate()
	}
	p.cancel()
	for _, w := range live {
		select {
		case <-w.Done():
			p.logger.Info("worker retired", zap.Int("worker_id", w.ID()))
		case <-ctx.Done():
			abandoned = append(abandoned, w.ID())
		}
	}

	p.mu.Lock()
	p.workers = make(map[int]*worker.OneShotWorker)
	p.status = StatusClosed
	p.mu.Unlock()

	if len(abandoned) > 0 {
		return fmt.Errorf("%w: %v", ErrWorkersAbandoned, abandoned)
	}
	return nil
}

// State returns a best-effort snapshot. A nil pool reports StatusUnknown.
func (p *Renewable) State() State {
	if p == nil {
		return Unknown()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	st := State{
		Kind:     "renewable",
		Status:   p.status,
		Capacity: p.cfg.MaxWorkers,
		InFlight: len(p.workers),
		Workers:  make([]WorkerStatus, 0, len(p.workers)),
	}
	for id, w := range p.workers {
		st.Workers = append(st.Workers, WorkerStatus{ID: id, State: w.State()})
	}
	sort.Slice(st.Workers, func(i, j int) bool { return st.Workers[i].ID < st.Workers[j].ID })
	return st
}
