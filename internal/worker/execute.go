// Package worker implements the execution units that run tasks for the pools:
// long-lived loop workers fed by a shared queue and one-shot workers that run
// a single task and exit.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/task"
)

// Execute runs t on the calling goroutine. A panic inside t.Fn is recovered
// into a *task.WorkerFault; a nil Fn yields a *task.DispatchError. It never
// panics itself.
func Execute(ctx context.Context, workerID int, t task.Task, logger *zap.Logger) (res task.Result) {
	res = task.Result{TaskID: t.ID, Name: t.Name, WorkerID: workerID}
	if t.Fn == nil {
		res.Err = &task.DispatchError{WorkerID: workerID, TaskID: t.ID, Name: t.Name}
		logger.Error("command not found", zap.Int("worker_id", workerID), zap.String("task", t.Label()))
		return res
	}

	logger.Info("task started",
		zap.Int("worker_id", workerID),
		zap.String("task", t.Label()),
		zap.Any("args", t.Args.Positional),
		zap.Any("kwargs", t.Args.Named),
	)
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			res.Value = nil
			res.Err = &task.WorkerFault{
				WorkerID: workerID,
				TaskID:   t.ID,
				Name:     t.Name,
				Value:    r,
				Stack:    debug.Stack(),
			}
			logger.Error("task panicked",
				zap.Int("worker_id", workerID),
				zap.String("task", t.Label()),
				zap.Any("args", t.Args.Positional),
				zap.Any("kwargs", t.Args.Named),
				zap.Any("panic", r),
				zap.ByteString("stack", res.Err.(*task.WorkerFault).Stack),
			)
			return
		}
		if res.Err != nil {
			logger.Warn("task failed",
				zap.Int("worker_id", workerID),
				zap.String("task", t.Label()),
				zap.Duration("duration", res.Duration),
				zap.Error(res.Err),
			)
			return
		}
		logger.Info("task finished",
			zap.Int("worker_id", workerID),
			zap.String("task", t.Label()),
			zap.Duration("duration", res.Duration),
			zap.String("result", fmt.Sprintf("%v", res.Value)),
		)
	}()

	res.Value, res.Err = t.Fn(ctx, t.Args)
	return res
}

// deliver invokes exactly one of the task callbacks. A panicking callback is
// logged and swallowed so it cannot take the worker down.
func deliver(workerID int, t task.Task, res task.Result, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task callback panicked",
				zap.Int("worker_id", workerID),
				zap.String("task", t.Label()),
				zap.Any("panic", r),
			)
		}
	}()
	if res.Err != nil {
		if t.OnError != nil {
			t.OnError(res.Err)
		}
		return
	}
	if t.OnSuccess != nil {
		t.OnSuccess(res.Value)
	}
}
