package task

import "fmt"

// DispatchError reports a queue item whose function reference could not be
// resolved. The item is dropped; the worker keeps running.
type DispatchError struct {
	WorkerID int
	TaskID   string
	Name     string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("worker %d: command not found for task %q (id %q)", e.WorkerID, e.Name, e.TaskID)
}

// WorkerFault wraps a panic raised inside a task body. It is recovered at the
// worker boundary and never propagates to the pool.
type WorkerFault struct {
	WorkerID int
	TaskID   string
	Name     string
	Value    any
	Stack    []byte
}

func (e *WorkerFault) Error() string {
	return fmt.Sprintf("worker %d: task %q panicked: %v", e.WorkerID, e.Name, e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *WorkerFault) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
