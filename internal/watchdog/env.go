package watchdog

import (
	"os"
	"strings"
)

const (
	// DefaultMarkerEnv carries the counterpart relationship between the pair.
	DefaultMarkerEnv = "WD_PID"
	// PendingMarker is written by a process that spawns a watchdog. The
	// child replaces it with its own PID on Start.
	PendingMarker = "self"
	// ReadyFDEnv names the inherited descriptor used for the readiness
	// handshake.
	ReadyFDEnv = "WD_READY_FD"
	// SessionEnv correlates the logs of one monitored pair.
	SessionEnv = "WD_SESSION"
	// ConfigEnv propagates the config file path to spawned processes.
	ConfigEnv = "WD_CONFIG"
)

// Environment is the process environment as seen by the watchdog.
type Environment interface {
	Lookup(key string) (string, bool)
	Set(key, value string) error
	Unset(key string) error
	Environ() []string
}

// OSEnv is the real process environment.
type OSEnv struct{}

func (OSEnv) Lookup(key string) (string, bool) { return os.LookupEnv(key) }
func (OSEnv) Set(key, value string) error      { return os.Setenv(key, value) }
func (OSEnv) Unset(key string) error           { return os.Unsetenv(key) }
func (OSEnv) Environ() []string                { return os.Environ() }

// childEnv copies base with key set to value and every key in drop removed.
func childEnv(base []string, key, value string, drop ...string) []string {
	out := make([]string, 0, len(base)+1)
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if k == key || contains(drop, k) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, key+"="+value)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
