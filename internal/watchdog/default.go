package watchdog

import (
	"context"
	"sync"
	"time"
)

var (
	defaultMu sync.Mutex
	defaultWD *Watchdog
)

// SetDefault installs the instance used by the package-level Start and Stop.
func SetDefault(w *Watchdog) {
	defaultMu.Lock()
	defaultWD = w
	defaultMu.Unlock()
}

// Default returns the process-wide instance, creating it on first use.
func Default() *Watchdog {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultWD == nil {
		defaultWD = New()
	}
	return defaultWD
}

// Start joins the monitored pair with the process-wide instance.
func Start(appPath string) error {
	return Default().Start(context.Background(), appPath)
}

// Stop ends the pair started with Start.
func Stop(timeout time.Duration) error {
	return Default().Stop(timeout)
}
