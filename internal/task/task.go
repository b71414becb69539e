// Package task defines the unit of recurring work driven by the scheduler.
package task

import (
	"errors"
	"time"

	"heartwatch/internal/uid"
)

var (
	ErrBadUID       = errors.New("task: invalid uid")
	ErrNilOperation = errors.New("task: nil operation")
)

// Status is the outcome of one run of an operation.
type Status int

const (
	// Done drops the task after this run.
	Done Status = iota
	// Continue reschedules the task one interval later.
	Continue
	// Error drops the task after this run.
	Error
)

func (s Status) String() string {
	switch s {
	case Done:
		return "done"
	case Continue:
		return "continue"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Operation is the work a task performs on every run.
type Operation interface {
	Execute() Status
}

// OperationFunc adapts a function to Operation.
type OperationFunc func() Status

func (f OperationFunc) Execute() Status { return f() }

// Cleanup runs once after every run of the operation.
type Cleanup interface {
	Cleanup()
}

// CleanupFunc adapts a function to Cleanup.
type CleanupFunc func()

func (f CleanupFunc) Cleanup() { f() }

// Task is a scheduled operation. Values captured by op and cleanup are
// borrowed; the task never releases them.
type Task struct {
	next     time.Time
	interval time.Duration
	op       Operation
	cleanup  Cleanup
	id       uid.UID
}

// New creates a task due at now+delay. An interval of 0 marks a one-shot
// task by convention; the scheduler still reschedules it if it returns
// Continue.
func New(id uid.UID, now time.Time, delay, interval time.Duration, op Operation, cleanup Cleanup) (*Task, error) {
	if id.IsBad() {
		return nil, ErrBadUID
	}
	if op == nil {
		return nil, ErrNilOperation
	}
	return &Task{
		next:     now.Add(delay),
		interval: interval,
		op:       op,
		cleanup:  cleanup,
		id:       id,
	}, nil
}

// Run executes the operation and then the cleanup, exactly once each.
// The cleanup also runs when the operation panics.
func (t *Task) Run() Status {
	if t.cleanup != nil {
		defer t.cleanup.Cleanup()
	}
	return t.op.Execute()
}

// UpdateNextRun moves the due time one interval forward. Call it once per
// completed run.
func (t *Task) UpdateNextRun() { t.next = t.next.Add(t.interval) }

func (t *Task) Matches(id uid.UID) bool { return uid.IsSame(id, t.id) }

func (t *Task) ID() uid.UID { return t.id }

func (t *Task) NextRun() time.Time { return t.next }

func (t *Task) Interval() time.Duration { return t.interval }

// Compare orders tasks by due time, earlier first.
func Compare(a, b *Task) int { return a.next.Compare(b.next) }

// CompareReverse orders tasks by due time, later first.
func CompareReverse(a, b *Task) int { return b.next.Compare(a.next) }
