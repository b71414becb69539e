// Package eventbus fans watchdog events out to in-process listeners such as
// the metrics exporter and the demo application.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the watchdog.
const (
	TypeStarted       = "watchdog.started"
	TypePeerReady     = "watchdog.peer_ready"
	TypePeerSilent    = "watchdog.peer_silent"
	TypeReviveOK      = "watchdog.revive_ok"
	TypeReviveFailed  = "watchdog.revive_failed"
	TypeReviveBlocked = "watchdog.revive_blocked"
	TypeShutdown      = "watchdog.shutdown"
	TypeStopped       = "watchdog.stopped"
)

// Event is a small in-memory notification.
//
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// PeerData describes the counterpart process an event refers to.
type PeerData struct {
	Role string
	PID  int
	Err  error
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a fanout bus without background goroutines.
func New() Bus {
	return &fanout{subs: map[uint64]chan Event{}}
}

// Nop returns a bus that drops everything.
func Nop() Bus { return nopBus{} }

type fanout struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		deliver(ch, e)
	}
}

// deliver tolerates a channel closed by a concurrent unsubscribe.
func deliver(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
	}
}

func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

type nopBus struct{}

func (nopBus) Publish(Event) {}

func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
