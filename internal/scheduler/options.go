package scheduler

import (
	"time"

	"heartwatch/internal/clock"
	"heartwatch/internal/task"
	"heartwatch/internal/uid"
	logx "heartwatch/pkg/logx"
)

// IDSource hands out task identifiers.
type IDSource interface {
	Create() (uid.UID, error)
}

// Observer receives scheduling events, typically to feed metrics.
type Observer interface {
	TaskRan(status task.Status)
	QueueSize(n int)
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clk = c
		}
	}
}

// WithTick sets the longest single sleep while waiting for a due task.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithComparator replaces task.Compare. The queue serves the task that
// compares greatest.
func WithComparator(cmp func(a, b *task.Task) int) Option {
	return func(s *Scheduler) {
		if cmp != nil {
			s.cmp = cmp
		}
	}
}

// WithCapacity bounds the number of queued tasks. n <= 0 means unbounded.
func WithCapacity(n int) Option {
	return func(s *Scheduler) { s.capacity = n }
}

func WithGenerator(g IDSource) Option {
	return func(s *Scheduler) {
		if g != nil {
			s.ids = g
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.obs = o }
}
