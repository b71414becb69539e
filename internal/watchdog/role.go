package watchdog

import (
	"fmt"
	"strconv"
	"strings"
)

// Role is the part a process plays in the monitored pair.
type Role int

const (
	// RolePrimary is the application process that started the pair.
	RolePrimary Role = iota
	// RoleWatchdog is the helper process started by the application.
	RoleWatchdog
	// RoleRevived is an application process relaunched by the watchdog.
	RoleRevived
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleWatchdog:
		return "watchdog"
	case RoleRevived:
		return "revived"
	default:
		return "unknown"
	}
}

// claimMarker replaces a pending marker with pid.
func claimMarker(env Environment, name string, pid int) error {
	v, ok := env.Lookup(name)
	if !ok || strings.TrimSpace(v) != PendingMarker {
		return nil
	}
	return env.Set(name, strconv.Itoa(pid))
}

// detectRole maps the marker to a role. For Revived the counterpart PID
// comes from the marker; the other roles learn it elsewhere and get 0.
func detectRole(env Environment, name string, pid int) (Role, int, error) {
	v, ok := env.Lookup(name)
	if !ok {
		return RolePrimary, 0, nil
	}
	marked, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || marked <= 0 {
		return 0, 0, fmt.Errorf("%w: %s=%q", ErrBadMarker, name, v)
	}
	if marked == pid {
		return RoleWatchdog, 0, nil
	}
	return RoleRevived, marked, nil
}
