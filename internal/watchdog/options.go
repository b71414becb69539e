package watchdog

import (
	"heartwatch/internal/clock"
	"heartwatch/internal/eventbus"
	"heartwatch/internal/scheduler"
	logx "heartwatch/pkg/logx"
)

type Option func(*Watchdog)

// WithConfig replaces DefaultConfig. Zero fields fall back to defaults,
// except HandshakeTimeout where 0 means wait forever.
func WithConfig(cfg Config) Option {
	return func(w *Watchdog) { w.cfg = cfg }
}

func WithLogger(log logx.Logger) Option {
	return func(w *Watchdog) { w.log = log }
}

func WithClock(c clock.Clock) Option {
	return func(w *Watchdog) {
		if c != nil {
			w.clk = c
		}
	}
}

func WithLauncher(l Launcher) Option {
	return func(w *Watchdog) {
		if l != nil {
			w.launcher = l
		}
	}
}

func WithSignaler(s Signaler) Option {
	return func(w *Watchdog) {
		if s != nil {
			w.signals = s
		}
	}
}

func WithEnvironment(env Environment) Option {
	return func(w *Watchdog) {
		if env != nil {
			w.env = env
		}
	}
}

func WithBus(b eventbus.Bus) Option {
	return func(w *Watchdog) {
		if b != nil {
			w.bus = b
		}
	}
}

// WithObserver wires protocol events. When o also implements
// scheduler.Observer it receives scheduler events too.
func WithObserver(o Observer) Option {
	return func(w *Watchdog) {
		w.obs = o
		if so, ok := o.(scheduler.Observer); ok {
			w.schedObs = so
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(w *Watchdog) { w.notifier = n }
}

// WithPIDs overrides how the process learns its own and its parent's PID.
func WithPIDs(self, parent func() int) Option {
	return func(w *Watchdog) {
		if self != nil {
			w.pid = self
		}
		if parent != nil {
			w.parentPID = parent
		}
	}
}
