// Command wd is the watchdog half of the pair. The application launches it
// with its own executable path as the only argument:
//
//	wd /usr/local/bin/wdapp
//
// wd exits when the application requests shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"heartwatch/internal/app"
	"heartwatch/internal/watchdog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wd:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "wd <app-path>",
		Short:         "Watchdog that relaunches the application when its heartbeats stop",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}
}

func run(parent context.Context, appPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	a, err := app.NewApp("", app.WithoutMetrics())
	if err != nil {
		return err
	}
	marker := a.Settings().MarkerEnv
	if v := os.Getenv(marker); v != watchdog.PendingMarker {
		return fmt.Errorf("%s=%q: wd must be launched by the application", marker, v)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start blocks in the watchdog role until the application asks the
	// pair to end or a signal cancels ctx.
	startErr := a.Start(ctx, appPath)
	reason := app.StopPairEnded
	if ctx.Err() != nil {
		reason = app.StopSIGTERM
	}
	if startErr != nil {
		reason = app.StopFatalError
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(sctx, reason, 0); err != nil && startErr == nil {
		return err
	}
	return startErr
}
