// Package task defines the unit of work handed to worker pools and the
// outcome reported back to submitters.
package task

import (
	"context"
	"fmt"
	"time"
)

// Func is the statically typed body of a Task. Implementations should honor
// ctx so pools can abandon them on forced shutdown.
type Func func(ctx context.Context, args Args) (any, error)

// Args carries the positional and named arguments bound at submission time.
type Args struct {
	Positional []any
	Named      map[string]any
}

// Task is a unit of submitted work. It is a value and is never mutated once
// submitted to a pool.
type Task struct {
	ID   string
	Name string
	Fn   Func
	Args Args

	// OnSuccess receives the value returned by Fn. Optional.
	OnSuccess func(value any)
	// OnError receives the failure returned by Fn, a *WorkerFault when Fn
	// panicked, or a *DispatchError when Fn is nil. Optional.
	OnError func(err error)
}

// New builds a Task with positional arguments.
func New(name string, fn Func, positional ...any) Task {
	return Task{
		Name: name,
		Fn:   fn,
		Args: Args{Positional: positional},
	}
}

// WithID returns a copy of t carrying the provided id.
func (t Task) WithID(id string) Task {
	t.ID = id
	return t
}

// WithCallbacks returns a copy of t carrying the provided callbacks.
func (t Task) WithCallbacks(onSuccess func(any), onError func(error)) Task {
	t.OnSuccess = onSuccess
	t.OnError = onError
	return t
}

// WithNamed returns a copy of t with an extra named argument.
func (t Task) WithNamed(key string, value any) Task {
	named := make(map[string]any, len(t.Args.Named)+1)
	for k, v := range t.Args.Named {
		named[k] = v
	}
	named[key] = value
	t.Args.Named = named
	return t
}

// Label identifies the task in logs.
func (t Task) Label() string {
	switch {
	case t.Name != "" && t.ID != "":
		return fmt.Sprintf("%s[%s]", t.Name, t.ID)
	case t.Name != "":
		return t.Name
	case t.ID != "":
		return t.ID
	default:
		return "anonymous"
	}
}

// String returns the positional argument at i or the named argument key as a
// string. Positional arguments take precedence.
func (a Args) String(i int, key string) (string, error) {
	if i >= 0 && i < len(a.Positional) {
		s, ok := a.Positional[i].(string)
		if !ok {
			return "", fmt.Errorf("argument %d: expected string, got %T", i, a.Positional[i])
		}
		return s, nil
	}
	if v, ok := a.Named[key]; ok {
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("argument %q: expected string, got %T", key, v)
		}
		return s, nil
	}
	return "", fmt.Errorf("missing argument %d (%q)", i, key)
}

// Result is the outcome of one task execution.
type Result struct {
	TaskID   string
	Name     string
	WorkerID int
	Value    any
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the task returned without error.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Outcome is a coarse label for metrics and logs.
func (r Result) Outcome() string {
	if r.Err == nil {
		return "success"
	}
	return "failure"
}
