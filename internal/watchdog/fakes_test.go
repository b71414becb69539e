package watchdog

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"heartwatch/internal/revive"
)

type fakeEnv struct {
	mu   sync.Mutex
	vars map[string]string
}

func newFakeEnv(kv ...string) *fakeEnv {
	e := &fakeEnv{vars: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		e.vars[kv[i]] = kv[i+1]
	}
	return e
}

func (e *fakeEnv) Lookup(k string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vars[k]
	return v, ok
}

func (e *fakeEnv) Set(k, v string) error {
	e.mu.Lock()
	e.vars[k] = v
	e.mu.Unlock()
	return nil
}

func (e *fakeEnv) Unset(k string) error {
	e.mu.Lock()
	delete(e.vars, k)
	e.mu.Unlock()
	return nil
}

func (e *fakeEnv) Environ() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.vars))
	for k, v := range e.vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

type sent struct {
	pid int
	sig syscall.Signal
}

type fakeSignaler struct {
	mu      sync.Mutex
	sent    []sent
	ch      chan<- os.Signal
	stopped bool
	ignored []os.Signal
}

func (f *fakeSignaler) Kill(pid int, sig syscall.Signal) error {
	f.mu.Lock()
	f.sent = append(f.sent, sent{pid: pid, sig: sig})
	f.mu.Unlock()
	return nil
}

func (f *fakeSignaler) Notify(ch chan<- os.Signal, _ ...os.Signal) {
	f.mu.Lock()
	f.ch = ch
	f.stopped = false
	f.mu.Unlock()
}

func (f *fakeSignaler) Stop(chan<- os.Signal) {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeSignaler) Ignore(sigs ...os.Signal) {
	f.mu.Lock()
	f.ignored = append(f.ignored, sigs...)
	f.mu.Unlock()
}

func (f *fakeSignaler) ignoring(sig os.Signal) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.ignored {
		if s == sig {
			return true
		}
	}
	return false
}

func (f *fakeSignaler) listening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ch != nil && !f.stopped
}

func (f *fakeSignaler) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// deliver simulates an incoming signal.
func (f *fakeSignaler) deliver(sig os.Signal) {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- sig:
	default:
	}
}

func (f *fakeSignaler) count(pid int, sig syscall.Signal) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.pid == pid && s.sig == sig {
			n++
		}
	}
	return n
}

type fakeProcess struct {
	pid      int
	readyErr error
}

func (p *fakeProcess) Pid() int                        { return p.pid }
func (p *fakeProcess) WaitReady(context.Context) error { return p.readyErr }
func (p *fakeProcess) Wait() error                     { return nil }

type fakeLauncher struct {
	mu      sync.Mutex
	specs   []Spec
	nextPID int
	// launchErr and readyErr pick a failure for the n-th launch, counting
	// from 0.
	launchErr func(n int) error
	readyErr  func(n int) error
}

func (l *fakeLauncher) Launch(_ context.Context, spec Spec) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.specs)
	l.specs = append(l.specs, spec)
	if l.launchErr != nil {
		if err := l.launchErr(n); err != nil {
			return nil, err
		}
	}
	p := &fakeProcess{pid: l.nextPID + n}
	if l.readyErr != nil {
		p.readyErr = l.readyErr(n)
	}
	return p, nil
}

func (l *fakeLauncher) launches() []Spec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Spec(nil), l.specs...)
}

func envValue(env []string, key string) (string, bool) {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

func fastConfig() Config {
	c := DefaultConfig()
	c.Tick = 2 * time.Millisecond
	c.SendInterval = 5 * time.Millisecond
	c.CheckInterval = 30 * time.Millisecond
	c.ShutdownInterval = 5 * time.Millisecond
	c.HandshakeTimeout = 100 * time.Millisecond
	c.WatchdogPath = "/opt/wd"
	c.Revive = revive.Config{TripFailures: -1}
	return c
}
