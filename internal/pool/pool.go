// Package pool manages sets of workers and their dispatch policy.
//
// Fixed keeps a static set of loop workers over one shared queue and drains
// them cooperatively on shutdown. Renewable starts a one-shot worker per
// submitted task, bounds how many run at once, and reaps each worker as soon
// as its task completes.
//
// Both pools deliver results the same way: through the OnSuccess/OnError
// callbacks carried by the task. Task failures never stop a pool.
package pool

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/JakeFAU/spider/internal/metrics"
	"github.com/JakeFAU/spider/internal/task"
)

// Sentinel errors returned by pools.
var (
	ErrPoolClosed       = errors.New("pool is closed")
	ErrPoolFull         = errors.New("pool is at capacity")
	ErrWorkersAbandoned = errors.New("workers still running after forced shutdown")
)

// Submitter is the dispatch surface shared by Fixed and Renewable.
type Submitter interface {
	Submit(ctx context.Context, t task.Task) error
	Shutdown(ctx context.Context) error
	State() State
}

const (
	defaultShutdownTimeout = 30 * time.Second
	defaultForceGrace      = 2 * time.Second
)

// DefaultWorkers is one less than the available parallelism, floored at 1.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// metricsObserver feeds worker notifications into Prometheus.
type metricsObserver struct {
	pool string
}

func (o metricsObserver) TaskStarted(int) {
	metrics.IncActiveWorkers(o.pool)
}

func (o metricsObserver) TaskFinished(_ int, res task.Result) {
	metrics.DecActiveWorkers(o.pool)
	metrics.ObserveTask(o.pool, res.Outcome())
}

var (
	_ Submitter = (*Fixed)(nil)
	_ Submitter = (*Renewable)(nil)
)
