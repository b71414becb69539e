package watchdog

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted = errors.New("watchdog: already started")
	ErrNotStarted     = errors.New("watchdog: not started")
	ErrBadMarker      = errors.New("watchdog: malformed marker")
	ErrNoPeer         = errors.New("watchdog: no counterpart pid")
	ErrNotReady       = errors.New("watchdog: counterpart did not become ready")
	ErrSchedulerSetup = errors.New("watchdog: scheduler setup failed")
)

// ReviveError reports a failed attempt to relaunch the counterpart.
type ReviveError struct {
	Role Role
	Path string
	Err  error
}

func (e *ReviveError) Error() string {
	return fmt.Sprintf("watchdog: %s failed to revive %s: %v", e.Role, e.Path, e.Err)
}

func (e *ReviveError) Unwrap() error { return e.Err }
