// Package clock abstracts wall-clock reads and sleeps so that scheduling can
// be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock reads time and blocks the caller.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// System is the real wall clock.
type System struct{}

func (System) Now() time.Time        { return time.Now() }
func (System) Sleep(d time.Duration) { time.Sleep(d) }

// Manual is a clock that only moves when told to. Sleep advances it
// immediately by d, so loops that wait on the clock never block.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	onStep func(now time.Time)
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Sleep(d time.Duration) {
	m.Advance(d)
	m.mu.Lock()
	m.slept += d
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	fn := m.onStep
	m.mu.Unlock()
	if fn != nil {
		fn(now)
	}
}

// Slept returns the total duration passed to Sleep.
func (m *Manual) Slept() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slept
}

// OnStep installs a hook called after every advance, outside the lock.
func (m *Manual) OnStep(fn func(now time.Time)) {
	m.mu.Lock()
	m.onStep = fn
	m.mu.Unlock()
}
