package config

import "hash/fnv"

// Config is the on-disk configuration shared by the application and its
// watchdog. Durations are Go duration strings ("500ms", "5s", "2m") or
// plain seconds.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Watchdog WatchdogConfig `json:"watchdog"`
	Revive   ReviveConfig   `json:"revive"`
	Metrics  MetricsConfig  `json:"metrics"`
	Systemd  SystemdConfig  `json:"systemd"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// WatchdogConfig controls the heartbeat protocol.
//
// Defaults (when fields are omitted):
//   - tick: 1s
//   - send_interval: 1s
//   - check_interval: 5s
//   - shutdown_interval: 1s
//   - watchdog_path: ./wd
//   - marker_env: WD_PID
//   - handshake_timeout: 10s ("0s" waits forever)
//   - order: soonest-first
type WatchdogConfig struct {
	Tick             Duration `json:"tick,omitempty"`
	SendInterval     Duration `json:"send_interval,omitempty"`
	CheckInterval    Duration `json:"check_interval,omitempty"`
	ShutdownInterval Duration `json:"shutdown_interval,omitempty"`
	WatchdogPath     string   `json:"watchdog_path,omitempty"`
	MarkerEnv        string   `json:"marker_env,omitempty"`
	Order            string   `json:"order,omitempty"`

	// HandshakeTimeout is a pointer so an explicit "0s" differs from omitted.
	HandshakeTimeout *Duration `json:"handshake_timeout,omitempty"`
}

// ReviveConfig throttles relaunching a silent counterpart.
//
// Omitted or zero fields take the defaults. trip_failures < 0 disables the
// breaker; rate_per_sec < 0 disables the rate limit.
type ReviveConfig struct {
	TripFailures int      `json:"trip_failures,omitempty"`
	BaseDelay    Duration `json:"base_delay,omitempty"`
	MaxDelay     Duration `json:"max_delay,omitempty"`
	ResetAfter   Duration `json:"reset_after,omitempty"`
	RatePerSec   float64  `json:"rate_per_sec,omitempty"`
	Burst        int      `json:"burst,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true, File: LoggingFile{Path: "./wd.log"}},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9464"},
		Systemd: SystemdConfig{Notify: true},
	}
}

func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
