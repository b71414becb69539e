// Package app wires configuration, logging, metrics and the service manager
// around a watchdog.Watchdog. Both executables of the pair use it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"heartwatch/internal/config"
	"heartwatch/internal/eventbus"
	"heartwatch/internal/metrics"
	"heartwatch/internal/runtime/supervisor"
	"heartwatch/internal/sdnotify"
	"heartwatch/internal/watchdog"
	logx "heartwatch/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.ConfigManager
	group   *supervisor.Group

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	metrics *metrics.Collector
	sd      *sdnotify.Notifier
	wd      *watchdog.Watchdog
	wcfg    watchdog.Config

	extra     []watchdog.Option
	noMetrics bool
}

type Option func(*App)

// WithoutMetrics disables the metrics endpoint regardless of config. The
// watchdog executable uses it so the pair does not compete for one port.
func WithoutMetrics() Option {
	return func(a *App) { a.noMetrics = true }
}

// WithWatchdogOptions appends options after the ones derived from config,
// so they win.
func WithWatchdogOptions(opts ...watchdog.Option) Option {
	return func(a *App) { a.extra = append(a.extra, opts...) }
}

// NewApp loads the config at cfgPath and builds the watchdog. An empty
// cfgPath falls back to the WD_CONFIG environment variable and then to
// defaults. The resolved path is exported through WD_CONFIG so the
// counterpart reads the same file.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath = os.Getenv(watchdog.ConfigEnv)
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfgPath != "" {
		if err := os.Setenv(watchdog.ConfigEnv, cfgPath); err != nil {
			return nil, err
		}
	}
	wcfg, err := cfg.WatchdogSettings()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogConfig())
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		sd:      sdnotify.New(cfg.Systemd.Notify),
		wcfg:    wcfg,
	}
	for _, opt := range opts {
		opt(a)
	}

	wopts := []watchdog.Option{
		watchdog.WithConfig(wcfg),
		watchdog.WithLogger(logSvc.Logger().With(logx.String("comp", "watchdog"))),
		watchdog.WithBus(a.bus),
		watchdog.WithNotifier(a.sd),
	}
	if cfg.Metrics.Enabled && !a.noMetrics {
		a.metrics = metrics.NewCollector(nil)
		wopts = append(wopts, watchdog.WithObserver(a.metrics))
	}
	a.wd = watchdog.New(append(wopts, a.extra...)...)
	watchdog.SetDefault(a.wd)
	return a, nil
}

func (a *App) Watchdog() *watchdog.Watchdog { return a.wd }

func (a *App) Logger() logx.Logger { return a.log }

// Settings returns the resolved watchdog configuration.
func (a *App) Settings() watchdog.Config { return a.wcfg }

// Done is closed when the app group is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.group == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.group.Context().Done()
}

// Err returns the first fatal error of a background goroutine.
func (a *App) Err() error {
	if a.group == nil {
		return nil
	}
	return a.group.Err()
}

// Start launches the background services and then joins the pair through
// watchdog.Start. In the watchdog role it blocks until the pair ends.
func (a *App) Start(ctx context.Context, appPath string) error {
	a.group = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	events, unsub := a.bus.Subscribe(64)
	a.group.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(4)
	a.group.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, cfg)
				last = cfg
			}
		}
	})
	a.group.Go("config.watch", a.cfgm.Watch)

	if a.metrics != nil {
		addr := a.cfgm.Get().Metrics.Addr
		a.group.GoRestart("metrics.http", func(c context.Context) error {
			return a.metrics.Serve(c, addr)
		}, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
		a.log.Info("metrics enabled", logx.String("addr", addr))
	}

	a.log.Info("app starting", logx.String("path", appPath), logx.String("config", a.cfgm.Path()))
	return a.wd.Start(a.group.Context(), appPath)
}

func (a *App) logEvent(e eventbus.Event) {
	pd, _ := e.Data.(eventbus.PeerData)
	fields := []logx.Field{
		logx.String("type", e.Type),
		logx.String("role", pd.Role),
		logx.Int("peer", pd.PID),
	}
	if pd.Err != nil {
		fields = append(fields, logx.Err(pd.Err))
	}
	switch e.Type {
	case eventbus.TypeReviveFailed, eventbus.TypeReviveBlocked:
		a.log.Warn("event", fields...)
	case eventbus.TypeReviveOK, eventbus.TypePeerSilent:
		a.log.Info("event", fields...)
	default:
		a.log.Debug("event", fields...)
	}
}

// applyConfig applies hot-reloadable sections. Everything else is only
// logged since the pair has to be restarted to pick it up.
func (a *App) applyConfig(old, cfg *config.Config) {
	sections := config.ChangedSections(old, cfg)
	if len(sections) == 0 {
		return
	}
	a.logs.Apply(cfg.LogConfig())
	if config.RequiresRestart(sections) {
		a.log.Warn("config change takes effect after restart", logx.String("changed", strings.Join(sections, ",")))
		return
	}
	a.log.Info("config applied", logx.String("changed", strings.Join(sections, ",")))
}

// Stop ends the pair, waiting timeout before the shutdown request, then
// stops the background services. Each step is bounded so one component
// cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason, timeout time.Duration) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	var errs []error
	if a.wd.Running() {
		a.step(ctx, "watchdog", timeout+2*time.Second, func(context.Context) error {
			return a.wd.Stop(timeout)
		}, &errs)
	}
	if a.group != nil {
		a.group.Cancel()
		a.step(ctx, "supervisor", 3*time.Second, a.group.Wait, &errs)
		if n := a.group.Active(); n > 0 {
			a.log.Warn("goroutines still running after stop", logx.Int64("active", n), logx.Uint64("started", a.group.Started()))
		}
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error, errs *[]error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	if max <= 0 {
		a.log.Warn("stop step skipped; no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
