package worker

import "sync/atomic"

// State is the lifecycle of a worker.
type State int32

// Worker lifecycle states.
const (
	StateIdle State = iota
	StateRunning
	StateTerminating
	StateDead
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type atomicState struct {
	v atomic.Int32
}

func (a *atomicState) load() State {
	return State(a.v.Load())
}

func (a *atomicState) store(s State) {
	a.v.Store(int32(s))
}

// advance moves to next unless the worker is already terminating or dead.
func (a *atomicState) advance(next State) {
	for {
		cur := a.v.Load()
		if State(cur) >= StateTerminating && next < StateTerminating {
			return
		}
		if a.v.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}
