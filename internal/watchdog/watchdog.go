// Package watchdog keeps an application and a companion watchdog process
// alive by having each one watch the other.
//
// Both processes run the same code. Every tick each side sends SigHeartbeat
// to its counterpart; every check interval each side verifies that it
// received at least one heartbeat since the previous check and relaunches the
// counterpart when it did not. The application ends the pair with Stop, which
// sends SigShutdown to the watchdog.
//
// The role of a process comes from the marker environment variable:
//
//	absent        RolePrimary   application started by the user
//	own PID       RoleWatchdog  helper started by the application
//	another PID   RoleRevived   application relaunched by the watchdog
package watchdog

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"heartwatch/internal/clock"
	"heartwatch/internal/eventbus"
	"heartwatch/internal/revive"
	"heartwatch/internal/runtime/supervisor"
	"heartwatch/internal/scheduler"
	"heartwatch/internal/task"
	logx "heartwatch/pkg/logx"
)

// Task orders for Config.Order.
const (
	// OrderSoonestFirst runs the earliest due task first. It is the default
	// here, unlike the scheduler package, because latest-first lets the
	// heartbeat task starve the check and shutdown tasks.
	OrderSoonestFirst = "soonest-first"
	// OrderLatestFirst is the scheduler package default: tail pop of the
	// queue ordered by task.Compare.
	OrderLatestFirst = "latest-first"
)

// Revival outcomes reported to the Observer.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeBlocked = "blocked"
)

type Config struct {
	// Tick is the scheduler time unit.
	Tick             time.Duration
	SendInterval     time.Duration
	CheckInterval    time.Duration
	ShutdownInterval time.Duration
	// WatchdogPath is the executable launched as the watchdog. It receives
	// the application path as its only argument.
	WatchdogPath string
	MarkerEnv    string
	// HandshakeTimeout bounds the wait for a launched counterpart to become
	// ready. 0 waits forever.
	HandshakeTimeout time.Duration
	Order            string
	Revive           revive.Config
}

func DefaultConfig() Config {
	return Config{
		Tick:             time.Second,
		SendInterval:     time.Second,
		CheckInterval:    5 * time.Second,
		ShutdownInterval: time.Second,
		WatchdogPath:     "./wd",
		MarkerEnv:        DefaultMarkerEnv,
		HandshakeTimeout: 10 * time.Second,
		Order:            OrderSoonestFirst,
		Revive:           revive.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Tick <= 0 {
		c.Tick = d.Tick
	}
	if c.SendInterval <= 0 {
		c.SendInterval = d.SendInterval
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = d.CheckInterval
	}
	if c.ShutdownInterval <= 0 {
		c.ShutdownInterval = d.ShutdownInterval
	}
	if c.WatchdogPath == "" {
		c.WatchdogPath = d.WatchdogPath
	}
	if c.MarkerEnv == "" {
		c.MarkerEnv = d.MarkerEnv
	}
	if c.HandshakeTimeout < 0 {
		c.HandshakeTimeout = 0
	}
	if c.Order == "" {
		c.Order = d.Order
	}
	return c
}

// Observer receives protocol events, typically to feed metrics.
type Observer interface {
	HeartbeatReceived()
	HeartbeatSent(ok bool)
	PeerSilent()
	Revival(outcome string)
}

// Notifier reports lifecycle changes to a service manager.
type Notifier interface {
	Ready() error
	Watchdog() error
	Stopping() error
}

// state is shared by the signal pump and the scheduled tasks.
type state struct {
	// beats is incremented by the pump and swapped to zero by the check task.
	beats atomic.Int64
	// dnr is set by the pump when SigShutdown arrives.
	dnr  atomic.Bool
	peer atomic.Int64
}

type Watchdog struct {
	cfg       Config
	log       logx.Logger
	clk       clock.Clock
	launcher  Launcher
	signals   Signaler
	env       Environment
	bus       eventbus.Bus
	obs       Observer
	schedObs  scheduler.Observer
	notifier  Notifier
	pid       func() int
	parentPID func() int
	policy    *revive.Policy

	mu        sync.Mutex
	running   bool
	role      Role
	appPath   string
	session   string
	rlog      logx.Logger
	st        *state
	sched     *scheduler.Scheduler
	group     *supervisor.Group
	sigCh     chan os.Signal
	handshake *Handshake
}

func New(opts ...Option) *Watchdog {
	w := &Watchdog{
		cfg:       DefaultConfig(),
		clk:       clock.System{},
		launcher:  ExecLauncher{},
		signals:   UnixSignaler{},
		env:       OSEnv{},
		bus:       eventbus.Nop(),
		pid:       unix.Getpid,
		parentPID: unix.Getppid,
	}
	for _, o := range opts {
		if o != nil {
			o(w)
		}
	}
	w.cfg = w.cfg.withDefaults()
	w.policy = revive.NewPolicy(w.cfg.Revive)
	return w
}

// Role reports the role detected by the last Start.
func (w *Watchdog) Role() Role {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.role
}

// Peer returns the PID currently believed to be the counterpart.
func (w *Watchdog) Peer() int {
	w.mu.Lock()
	st := w.st
	w.mu.Unlock()
	if st == nil {
		return 0
	}
	return int(st.peer.Load())
}

// Running reports whether the pair is being watched by this process.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start joins the monitored pair. appPath is the application executable the
// watchdog relaunches.
//
// For Primary and Revived processes Start returns once the pair is set up
// and watching continues in the background. For the Watchdog role Start
// blocks until a shutdown request tears the pair down.
func (w *Watchdog) Start(ctx context.Context, appPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := w.setup(ctx, appPath); err != nil {
		return err
	}

	switch w.role {
	case RolePrimary:
		pid, err := w.spawn(w.group.Context())
		if err != nil {
			w.teardown()
			return fmt.Errorf("watchdog: start %s: %w", w.cfg.WatchdogPath, err)
		}
		w.st.peer.Store(int64(pid))
	case RoleWatchdog:
		w.st.peer.Store(int64(w.parentPID()))
	}

	if err := w.addTasks(); err != nil {
		w.teardown()
		return fmt.Errorf("%w: %v", ErrSchedulerSetup, err)
	}
	if w.role != RolePrimary {
		if err := w.handshake.Post(); err != nil && !w.rlog.IsZero() {
			w.rlog.Warn("handshake post failed", logx.Err(err))
		}
	}

	w.notify(Notifier.Ready)
	w.bus.Publish(eventbus.Event{Type: eventbus.TypeStarted, Data: w.peerData(nil)})
	if !w.rlog.IsZero() {
		w.rlog.Info("watchdog started", logx.Int("peer", w.Peer()), logx.String("app", appPath))
	}

	if w.role == RoleWatchdog {
		res := w.sched.Run(w.group.Context())
		w.teardown()
		if res == scheduler.MemoryError {
			return fmt.Errorf("watchdog: scheduler: %s", res)
		}
		return nil
	}

	w.group.Go0("scheduler", func(ctx context.Context) {
		res := w.sched.Run(ctx)
		if !w.rlog.IsZero() {
			w.rlog.Debug("scheduler returned", logx.Stringer("result", res))
		}
	})
	return nil
}

// setup claims the marker, detects the role and starts signal delivery.
func (w *Watchdog) setup(ctx context.Context, appPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyStarted
	}

	pid := w.pid()
	if err := claimMarker(w.env, w.cfg.MarkerEnv, pid); err != nil {
		return fmt.Errorf("watchdog: claim marker: %w", err)
	}
	role, peer, err := detectRole(w.env, w.cfg.MarkerEnv, pid)
	if err != nil {
		return err
	}

	hs := &Handshake{}
	if role != RolePrimary {
		if hs, err = HandshakeFromEnv(w.env); err != nil {
			return err
		}
	}

	w.role = role
	w.appPath = appPath
	w.session = w.ensureSession()
	w.rlog = w.log
	if !w.log.IsZero() {
		w.rlog = w.log.With(logx.String("role", role.String()), logx.Int("pid", pid), logx.String("session", w.session))
	}
	w.st = &state{}
	w.st.peer.Store(int64(peer))
	w.handshake = hs
	w.sched = scheduler.New(
		scheduler.WithClock(w.clk),
		scheduler.WithTick(w.cfg.Tick),
		scheduler.WithComparator(comparator(w.cfg.Order)),
		scheduler.WithLogger(w.rlog),
		scheduler.WithObserver(w.schedObs),
	)
	w.group = supervisor.New(ctx, supervisor.WithLogger(w.rlog))
	w.sigCh = make(chan os.Signal, 64)
	w.signals.Notify(w.sigCh, SigHeartbeat, SigShutdown)
	st, sigCh := w.st, w.sigCh
	w.group.Go0("signal-pump", func(ctx context.Context) { w.pump(ctx, st, sigCh) })
	w.running = true
	return nil
}

func comparator(order string) func(a, b *task.Task) int {
	if order == OrderLatestFirst {
		return task.Compare
	}
	return task.CompareReverse
}

func (w *Watchdog) ensureSession() string {
	if v, ok := w.env.Lookup(SessionEnv); ok && v != "" {
		return v
	}
	id := uuid.NewString()
	_ = w.env.Set(SessionEnv, id)
	return id
}

// pump turns delivered signals into one atomic update each.
func (w *Watchdog) pump(ctx context.Context, st *state, ch <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			switch sig {
			case SigHeartbeat:
				st.beats.Add(1)
				if w.obs != nil {
					w.obs.HeartbeatReceived()
				}
			case SigShutdown:
				st.dnr.Store(true)
			}
		}
	}
}

func (w *Watchdog) addTasks() error {
	if _, err := w.sched.Add(0, w.cfg.SendInterval, task.OperationFunc(w.sendHeartbeat), nil); err != nil {
		return err
	}
	if _, err := w.sched.Add(w.cfg.CheckInterval, w.cfg.CheckInterval, task.OperationFunc(w.checkPeer), nil); err != nil {
		return err
	}
	if w.role == RoleWatchdog {
		if _, err := w.sched.Add(0, w.cfg.ShutdownInterval, task.OperationFunc(w.checkShutdown), nil); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watchdog) sendHeartbeat() task.Status {
	peer := int(w.st.peer.Load())
	err := w.signals.Kill(peer, SigHeartbeat)
	if w.obs != nil {
		w.obs.HeartbeatSent(err == nil)
	}
	if err != nil && !w.rlog.IsZero() {
		w.rlog.Debug("heartbeat not delivered", logx.Int("peer", peer), logx.Err(err))
	}
	return task.Continue
}

func (w *Watchdog) checkPeer() task.Status {
	if w.st.dnr.Load() {
		return task.Continue
	}
	if w.st.beats.Swap(0) > 0 {
		w.notify(Notifier.Watchdog)
		return task.Continue
	}

	if !w.rlog.IsZero() {
		w.rlog.Warn("counterpart silent", logx.Int("peer", int(w.st.peer.Load())))
	}
	if w.obs != nil {
		w.obs.PeerSilent()
	}
	w.bus.Publish(eventbus.Event{Type: eventbus.TypePeerSilent, Data: w.peerData(nil)})
	w.revive()
	return task.Continue
}

func (w *Watchdog) checkShutdown() task.Status {
	if !w.st.dnr.Load() {
		return task.Continue
	}
	if !w.rlog.IsZero() {
		w.rlog.Info("shutdown requested")
	}
	w.bus.Publish(eventbus.Event{Type: eventbus.TypeShutdown, Data: w.peerData(nil)})
	w.teardown()
	return task.Done
}

// revive relaunches the counterpart when the policy allows it. The believed
// counterpart PID only changes after the new process posted its handshake.
func (w *Watchdog) revive() {
	now := w.clk.Now()
	if ok, retryAt := w.policy.Allow(now); !ok {
		if !w.rlog.IsZero() {
			w.rlog.Warn("revive postponed", logx.Time("retry_at", retryAt), logx.Int("failures", w.policy.Failures()))
		}
		if w.obs != nil {
			w.obs.Revival(OutcomeBlocked)
		}
		w.bus.Publish(eventbus.Event{Type: eventbus.TypeReviveBlocked, Data: w.peerData(nil)})
		return
	}

	pid, err := w.spawn(w.group.Context())
	w.policy.Record(w.clk.Now(), err)
	if err != nil {
		rerr := &ReviveError{Role: w.role, Path: w.peerSpec().Path, Err: err}
		if !w.rlog.IsZero() {
			w.rlog.Error("revive failed", logx.Err(rerr))
		}
		if w.obs != nil {
			w.obs.Revival(OutcomeFailed)
		}
		w.bus.Publish(eventbus.Event{Type: eventbus.TypeReviveFailed, Data: w.peerData(rerr)})
		return
	}

	w.st.peer.Store(int64(pid))
	if !w.rlog.IsZero() {
		w.rlog.Info("counterpart revived", logx.Int("peer", pid))
	}
	if w.obs != nil {
		w.obs.Revival(OutcomeOK)
	}
	w.bus.Publish(eventbus.Event{Type: eventbus.TypeReviveOK, Data: w.peerData(nil)})
}

// spawn launches the counterpart and waits for its handshake. A child that
// does not become ready in time is killed.
func (w *Watchdog) spawn(ctx context.Context) (int, error) {
	proc, err := w.launcher.Launch(ctx, w.peerSpec())
	if err != nil {
		return 0, err
	}
	wctx := ctx
	if w.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, w.cfg.HandshakeTimeout)
		defer cancel()
	}
	if err := proc.WaitReady(wctx); err != nil {
		_ = w.signals.Kill(proc.Pid(), unix.SIGKILL)
		return 0, err
	}
	w.bus.Publish(eventbus.Event{Type: eventbus.TypePeerReady, Data: eventbus.PeerData{Role: w.role.String(), PID: proc.Pid()}})
	return proc.Pid(), nil
}

// peerSpec describes the counterpart of this process. The watchdog
// relaunches the application with its own PID as marker; everybody else
// launches the watchdog with a pending marker.
func (w *Watchdog) peerSpec() Spec {
	environ := w.env.Environ()
	if w.role == RoleWatchdog {
		return Spec{
			Path: w.appPath,
			Env:  childEnv(environ, w.cfg.MarkerEnv, strconv.Itoa(w.pid()), ReadyFDEnv),
		}
	}
	return Spec{
		Path: w.cfg.WatchdogPath,
		Args: []string{w.appPath},
		Env:  childEnv(environ, w.cfg.MarkerEnv, PendingMarker, ReadyFDEnv),
	}
}

func (w *Watchdog) peerData(err error) eventbus.PeerData {
	return eventbus.PeerData{Role: w.role.String(), PID: int(w.st.peer.Load()), Err: err}
}

// Stop ends the pair: after sleeping timeout it asks the watchdog to shut
// down and stops local watching.
func (w *Watchdog) Stop(timeout time.Duration) error {
	w.mu.Lock()
	running, st := w.running, w.st
	w.mu.Unlock()
	if !running {
		return ErrNotStarted
	}
	if timeout > 0 {
		w.clk.Sleep(timeout)
	}

	var err error
	peer := int(st.peer.Load())
	if kerr := w.signals.Kill(peer, SigShutdown); kerr != nil {
		err = fmt.Errorf("watchdog: shutdown signal to %d: %w", peer, kerr)
	}
	w.teardown()
	return err
}

// teardown releases everything Start acquired. It runs once per Start.
func (w *Watchdog) teardown() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	sched, group, sigCh, hs := w.sched, w.group, w.sigCh, w.handshake
	w.mu.Unlock()

	sched.Close()
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), w.joinTimeout())
	defer cancel()
	if err := group.Stop(ctx); err != nil && !w.rlog.IsZero() {
		w.rlog.Warn("background goroutines did not stop cleanly", logx.Err(err))
	}

	w.signals.Stop(sigCh)
	// A heartbeat still in flight must not kill the process.
	w.signals.Ignore(SigHeartbeat)
	_ = w.env.Unset(w.cfg.MarkerEnv)
	_ = hs.Close()
	w.notify(Notifier.Stopping)
	w.bus.Publish(eventbus.Event{Type: eventbus.TypeStopped, Data: w.peerData(nil)})
	if !w.rlog.IsZero() {
		w.rlog.Info("watchdog stopped")
	}
}

// joinTimeout covers one tick of waiting plus a pending handshake.
func (w *Watchdog) joinTimeout() time.Duration {
	d := 2 * w.cfg.Tick
	if w.cfg.HandshakeTimeout > 0 {
		d += w.cfg.HandshakeTimeout
	}
	if d < 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func (w *Watchdog) notify(fn func(Notifier) error) {
	if w.notifier == nil {
		return
	}
	if err := fn(w.notifier); err != nil && !w.rlog.IsZero() {
		w.rlog.Debug("service manager notify failed", logx.Err(err))
	}
}
