package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"heartwatch/internal/watchdog"
	logx "heartwatch/pkg/logx"
)

// LogConfig maps the logging section onto logx.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// WatchdogSettings resolves the watchdog and revive sections, filling in
// defaults for omitted fields. All field errors are reported together.
func (c *Config) WatchdogSettings() (watchdog.Config, error) {
	out := watchdog.DefaultConfig()
	var errs []error
	dur := func(path string, raw Duration, dst *time.Duration) {
		v, err := raw.Or(path, *dst)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}

	wc := c.Watchdog
	dur("watchdog.tick", wc.Tick, &out.Tick)
	dur("watchdog.send_interval", wc.SendInterval, &out.SendInterval)
	dur("watchdog.check_interval", wc.CheckInterval, &out.CheckInterval)
	dur("watchdog.shutdown_interval", wc.ShutdownInterval, &out.ShutdownInterval)
	if wc.HandshakeTimeout != nil {
		v, _, err := wc.HandshakeTimeout.Parse("watchdog.handshake_timeout")
		if err != nil {
			errs = append(errs, err)
		} else {
			out.HandshakeTimeout = v
		}
	}
	if s := strings.TrimSpace(wc.WatchdogPath); s != "" {
		out.WatchdogPath = s
	}
	if s := strings.TrimSpace(wc.MarkerEnv); s != "" {
		if strings.ContainsAny(s, "= \t") {
			errs = append(errs, fmt.Errorf("watchdog.marker_env: invalid variable name %q", s))
		}
		out.MarkerEnv = s
	}
	switch o := strings.TrimSpace(wc.Order); o {
	case "":
	case watchdog.OrderSoonestFirst, watchdog.OrderLatestFirst:
		out.Order = o
	default:
		errs = append(errs, fmt.Errorf("watchdog.order: unknown value %q", o))
	}
	if out.SendInterval >= out.CheckInterval {
		errs = append(errs, fmt.Errorf("watchdog.send_interval (%s) must be shorter than check_interval (%s)", out.SendInterval, out.CheckInterval))
	}

	rc := c.Revive
	if rc.TripFailures != 0 {
		out.Revive.TripFailures = rc.TripFailures
	}
	dur("revive.base_delay", rc.BaseDelay, &out.Revive.BaseDelay)
	dur("revive.max_delay", rc.MaxDelay, &out.Revive.MaxDelay)
	dur("revive.reset_after", rc.ResetAfter, &out.Revive.ResetAfter)
	if rc.RatePerSec != 0 {
		out.Revive.RatePerSec = rc.RatePerSec
	}
	if rc.Burst < 0 {
		errs = append(errs, errors.New("revive.burst: must be >= 0"))
	} else if rc.Burst > 0 {
		out.Revive.Burst = rc.Burst
	}

	if err := errors.Join(errs...); err != nil {
		return watchdog.Config{}, err
	}
	return out, nil
}

// Validate checks every section without applying it.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path: required when file logging is enabled"))
	}
	if _, err := c.WatchdogSettings(); err != nil {
		errs = append(errs, err)
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		errs = append(errs, errors.New("metrics.addr: required when metrics are enabled"))
	}
	return errors.Join(errs...)
}
