package worker

import "github.com/JakeFAU/spider/internal/task"

type itemKind uint8

const (
	kindInvalid itemKind = iota
	kindTask
	kindShutdown
)

// Item is the element type of the shared queue: either a Task or the
// shutdown signal. The zero Item is neither and is treated as unresolvable.
type Item struct {
	kind itemKind
	task task.Task
}

// TaskItem wraps t for the queue.
func TaskItem(t task.Task) Item {
	return Item{kind: kindTask, task: t}
}

// ShutdownItem returns the signal that stops exactly one loop worker.
func ShutdownItem() Item {
	return Item{kind: kindShutdown}
}

// IsShutdown reports whether the item is the shutdown signal.
func (i Item) IsShutdown() bool {
	return i.kind == kindShutdown
}

// Task returns the wrapped task and whether the item carries one.
func (i Item) Task() (task.Task, bool) {
	if i.kind != kindTask {
		return task.Task{}, false
	}
	return i.task, true
}
