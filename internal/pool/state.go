package pool

import "github.com/JakeFAU/spider/internal/worker"

// Status is the coarse lifecycle of a pool.
type Status string

// Pool statuses.
const (
	StatusRunning Status = "running"
	StatusClosing Status = "closing"
	StatusClosed  Status = "closed"
	StatusUnknown Status = "unknown"
)

// WorkerStatus describes one worker in a State snapshot.
type WorkerStatus struct {
	ID       int          `json:"id"`
	State    worker.State `json:"state"`
	Executed int64        `json:"executed,omitempty"`
}

// State is a best-effort snapshot of a pool.
type State struct {
	Kind     string         `json:"kind"`
	Status   Status         `json:"status"`
	Capacity int            `json:"capacity"`
	InFlight int            `json:"in_flight"`
	Queued   int            `json:"queued"`
	Workers  []WorkerStatus `json:"workers"`
}

// Unknown is returned when a snapshot cannot be taken.
func Unknown() State {
	return State{Status: StatusUnknown}
}
