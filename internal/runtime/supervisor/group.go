// Package supervisor owns the background goroutines of a watchdog process:
// the scheduler loop, the signal pump, child reapers and optional servers.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "heartwatch/pkg/logx"
)

// Group runs named goroutines tied to one context.
//   - Panics are recovered and reported as errors
//   - The first error is kept and returned by Wait
//   - Stop cancels the context and joins every member
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Uint64
	active  atomic.Int64

	log         logx.Logger
	cancelOnErr bool
	errOnce     sync.Once
	firstErr    atomic.Value // error
	doneOnce    sync.Once
	doneCh      chan struct{}
	wg          sync.WaitGroup
}

type Option func(*Group)

func WithLogger(log logx.Logger) Option {
	return func(g *Group) { g.log = log }
}

// WithCancelOnError cancels the group context on the first failure of any
// member.
func WithCancelOnError(enabled bool) Option {
	return func(g *Group) { g.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Group {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	g := &Group{ctx: ctx, cancel: cancel, doneCh: make(chan struct{})}
	for _, o := range opts {
		if o != nil {
			o(g)
		}
	}
	return g
}

func (g *Group) Context() context.Context { return g.ctx }

// Cancel cancels the group context without waiting.
func (g *Group) Cancel() { g.cancel() }

func (g *Group) Err() error {
	if err, ok := g.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

// Active reports how many members are running.
func (g *Group) Active() int64 { return g.active.Load() }

// Started reports how many members were ever started.
func (g *Group) Started() uint64 { return g.started.Load() }

// Go starts fn as a named member. A context.Canceled return is a clean exit.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	g.started.Add(1)
	g.active.Add(1)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.active.Add(-1)

		err := g.runGuarded(name, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.fail(fmt.Errorf("%s: %w", name, err))
		}
		if !g.log.IsZero() {
			g.log.Debug("goroutine stopped", logx.String("name", name))
		}
	}()
}

// Go0 is Go for functions without an error result.
func (g *Group) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	g.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

func (g *Group) runGuarded(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if !g.log.IsZero() {
				g.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if !g.log.IsZero() {
		g.log.Debug("goroutine started", logx.String("name", name))
	}
	return fn(g.ctx)
}

// RestartOption configures GoRestart.
type RestartOption func(*restartCfg)

type restartCfg struct {
	minBackoff  time.Duration
	maxBackoff  time.Duration
	maxRestarts int
}

// WithRestartBackoff sets the exponential backoff window between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartCfg) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMaxRestarts limits restarts before giving up. n <= 0 means unlimited.
func WithMaxRestarts(n int) RestartOption { return func(c *restartCfg) { c.maxRestarts = n } }

// GoRestart runs fn and restarts it after an error or panic with jittered
// exponential backoff. A nil return or group cancellation ends the loop.
func (g *Group) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartCfg{minBackoff: 250 * time.Millisecond, maxBackoff: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxBackoff < cfg.minBackoff {
		cfg.maxBackoff = cfg.minBackoff
	}

	g.Go(name, func(ctx context.Context) error {
		backoff := cfg.minBackoff
		for restarts := 0; ; restarts++ {
			startedAt := time.Now()
			err := g.runGuarded(name, fn)
			if ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if cfg.maxRestarts > 0 && restarts >= cfg.maxRestarts {
				if !g.log.IsZero() {
					g.log.Error("goroutine gave up after restarts", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				}
				return err
			}
			// A long healthy run resets the backoff.
			if time.Since(startedAt) >= 30*time.Second {
				backoff = cfg.minBackoff
			}
			wait := jitter(backoff)
			if !g.log.IsZero() {
				g.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			backoff *= 2
			if backoff > cfg.maxBackoff {
				backoff = cfg.maxBackoff
			}
		}
	})
}

// jitter adds up to 20% to d.
func jitter(d time.Duration) time.Duration {
	j := int64(d) / 5
	if j <= 0 {
		return d
	}
	return d + time.Duration(time.Now().UnixNano()%(j+1))
}

// Stop cancels the group and waits for every member, bounded by ctx.
func (g *Group) Stop(ctx context.Context) error {
	g.cancel()
	return g.Wait(ctx)
}

// Wait blocks until every member returned or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	g.doneOnce.Do(func() {
		go func() {
			g.wg.Wait()
			close(g.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.doneCh:
		return g.Err()
	}
}

func (g *Group) fail(err error) {
	g.errOnce.Do(func() { g.firstErr.Store(err) })
	if g.cancelOnErr {
		g.cancel()
	}
}
