// Package scheduler runs tasks from a priority queue until it is stopped or
// runs out of work.
//
// The scheduler is single-threaded in the sense that only one task executes at
// a time, on the goroutine that called Run. Every other method may be called
// concurrently, including from inside a running task.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"heartwatch/internal/clock"
	"heartwatch/internal/pq"
	"heartwatch/internal/task"
	"heartwatch/internal/uid"
	logx "heartwatch/pkg/logx"
)

var (
	ErrBadUID   = task.ErrBadUID
	ErrNotFound = errors.New("scheduler: task not found")
	ErrClosed   = errors.New("scheduler: closed")
)

// Result tells why Run returned.
type Result int

const (
	// Stopped means Stop was called or the context was cancelled.
	Stopped Result = iota
	// NoMoreTasks means the queue drained.
	NoMoreTasks
	// MemoryError means a task could not be put back into the queue.
	MemoryError
)

func (r Result) String() string {
	switch r {
	case Stopped:
		return "stopped"
	case NoMoreTasks:
		return "no_more_tasks"
	case MemoryError:
		return "memory_error"
	default:
		return "unknown"
	}
}

type Scheduler struct {
	mu    sync.Mutex
	queue *pq.Queue[*task.Task]

	// current is the task taken off the queue by Run, either waiting to
	// become due or executing. dropCurrent asks Run not to put it back.
	current     *task.Task
	dropCurrent bool
	stop        bool
	closed      bool

	clk      clock.Clock
	tick     time.Duration
	cmp      func(a, b *task.Task) int
	capacity int
	ids      IDSource
	log      logx.Logger
	obs      Observer
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clk:  clock.System{},
		tick: time.Second,
		cmp:  task.Compare,
	}
	for _, fn := range opts {
		if fn != nil {
			fn(s)
		}
	}
	if s.ids == nil {
		s.ids = uid.NewGenerator()
	}
	s.queue = pq.New(s.cmp, pq.WithCapacity(s.capacity))
	return s
}

// Add schedules op to run after delay and then every interval for as long as
// it returns task.Continue. cleanup may be nil.
func (s *Scheduler) Add(delay, interval time.Duration, op task.Operation, cleanup task.Cleanup) (uid.UID, error) {
	if op == nil {
		return uid.Bad, task.ErrNilOperation
	}
	id, err := s.ids.Create()
	if err != nil {
		return uid.Bad, fmt.Errorf("%w: %v", ErrBadUID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return uid.Bad, ErrClosed
	}
	t, err := task.New(id, s.clk.Now(), delay, interval, op, cleanup)
	if err != nil {
		return uid.Bad, err
	}
	if err := s.queue.Enqueue(t); err != nil {
		return uid.Bad, err
	}
	s.observeSizeLocked()
	return id, nil
}

// Remove unschedules the task with the given id. A task that is currently
// taken by Run finishes its ongoing execution but is not rescheduled.
func (s *Scheduler) Remove(id uid.UID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.Matches(id) {
		s.dropCurrent = true
		return nil
	}
	if _, ok := s.queue.Erase(func(t *task.Task) bool { return t.Matches(id) }); ok {
		s.observeSizeLocked()
		return nil
	}
	return ErrNotFound
}

// Run executes due tasks until the queue is empty, Stop is called or ctx is
// done. Only one Run may be active at a time.
func (s *Scheduler) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		s.mu.Lock()
		if s.stop {
			s.stop = false
			s.mu.Unlock()
			return Stopped
		}
		t, ok := s.queue.Dequeue()
		if !ok {
			s.mu.Unlock()
			return NoMoreTasks
		}
		s.current = t
		s.dropCurrent = false
		s.mu.Unlock()

		if !s.waitDue(ctx, t.NextRun()) {
			return s.abortWait(t)
		}

		s.mu.Lock()
		skip := s.dropCurrent
		s.mu.Unlock()

		status := task.Done
		if !skip {
			status = s.execute(t)
			if !s.log.IsZero() {
				s.log.Debug("task ran", logx.Stringer("task", t.ID()), logx.Stringer("status", status))
			}
			if s.obs != nil {
				s.obs.TaskRan(status)
			}
		}

		if res, ok := s.settle(t, status); !ok {
			return res
		}
	}
}

// settle puts a continuing task back into the queue. It reports false with
// MemoryError when that fails.
func (s *Scheduler) settle(t *task.Task, status task.Status) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := s.dropCurrent
	s.current = nil
	s.dropCurrent = false

	if status == task.Continue && !drop {
		t.UpdateNextRun()
		if err := s.queue.Enqueue(t); err != nil {
			if !s.log.IsZero() {
				s.log.Warn("task reschedule failed", logx.Stringer("task", t.ID()), logx.Err(err))
			}
			s.observeSizeLocked()
			return MemoryError, false
		}
	}
	s.observeSizeLocked()
	return 0, true
}

// abortWait returns a not yet due task to the queue after a stop request or
// context cancellation.
func (s *Scheduler) abortWait(t *task.Task) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := s.dropCurrent
	s.current = nil
	s.dropCurrent = false
	s.stop = false
	if !drop {
		if err := s.queue.Enqueue(t); err != nil {
			return MemoryError
		}
	}
	return Stopped
}

// waitDue sleeps in tick sized steps until due. It reports false when the
// wait was interrupted.
func (s *Scheduler) waitDue(ctx context.Context, due time.Time) bool {
	for {
		if ctx.Err() != nil || s.stopRequested() {
			return false
		}
		now := s.clk.Now()
		if !now.Before(due) {
			return true
		}
		d := due.Sub(now)
		if d > s.tick {
			d = s.tick
		}
		s.clk.Sleep(d)
	}
}

func (s *Scheduler) execute(t *task.Task) task.Status {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.current = nil
			s.dropCurrent = false
			s.mu.Unlock()
			panic(r)
		}
	}()
	return t.Run()
}

func (s *Scheduler) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop
}

// Stop makes Run return Stopped before it takes the next task. A task that is
// executing is never interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stop = true
	s.mu.Unlock()
}

// Size counts queued tasks plus the one taken by Run, if any.
func (s *Scheduler) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.queue.Len()
	if s.current != nil {
		n++
	}
	return n
}

func (s *Scheduler) IsEmpty() bool { return s.Size() == 0 }

// Clear drops every queued task. The task taken by Run, if any, is not
// rescheduled.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Scheduler) clearLocked() {
	s.queue.Clear()
	if s.current != nil {
		s.dropCurrent = true
	}
	s.observeSizeLocked()
}

// Close clears the scheduler and rejects further Add calls with ErrClosed.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.closed = true
}

func (s *Scheduler) observeSizeLocked() {
	if s.obs != nil {
		s.obs.QueueSize(s.queue.Len())
	}
}
