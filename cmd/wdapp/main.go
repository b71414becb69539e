// Command wdapp is a demo application kept alive by the wd watchdog.
//
//	wdapp --config ./wd.yaml --work 1m
//	wdapp check --config ./wd.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	yaml "go.yaml.in/yaml/v3"

	"heartwatch/internal/app"
	"heartwatch/internal/config"
	"heartwatch/internal/watchdog"
	logx "heartwatch/pkg/logx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wdapp:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath     string
		work        time.Duration
		every       time.Duration
		stopTimeout time.Duration
	)
	root := &cobra.Command{
		Use:   "wdapp",
		Short: "Demo application supervised by a companion watchdog process",
		Long: `wdapp starts the wd watchdog, exchanges heartbeats with it and does
some periodic work. If wdapp dies the watchdog relaunches it; if the
watchdog dies wdapp relaunches it. A relaunched wdapp reads its config
from WD_CONFIG.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgPath, work, every, stopTimeout)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (JSON or YAML); defaults to $WD_CONFIG")
	root.Flags().DurationVar(&work, "work", 0, "stop the pair after this long (0 runs until SIGINT/SIGTERM)")
	root.Flags().DurationVar(&every, "every", 2*time.Second, "interval between work units")
	root.Flags().DurationVar(&stopTimeout, "stop-timeout", 0, "grace period before the watchdog is asked to shut down")
	root.AddCommand(newCheckCmd(&cfgPath))
	return root
}

func run(parent context.Context, cfgPath string, work, every, stopTimeout time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}
	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(self); err == nil {
		self = resolved
	}

	// The pair outlives signal handling: Stop owns the teardown.
	if err := a.Start(context.WithoutCancel(parent), self); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError, 0)
		return err
	}
	log := a.Logger()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var deadline <-chan time.Time
	if work > 0 {
		t := time.NewTimer(work)
		defer t.Stop()
		deadline = t.C
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	reason := app.StopUnknown
	for n := 1; reason == app.StopUnknown; n++ {
		select {
		case <-ticker.C:
			log.Info("work unit done", logx.Int("n", n), logx.Int("peer", a.Watchdog().Peer()))
			continue
		case <-deadline:
			reason = app.StopWorkDone
		case s := <-sigCh:
			reason = app.StopSIGTERM
			if s == os.Interrupt {
				reason = app.StopSIGINT
			}
		case <-a.Done():
			reason = app.StopFatalError
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout+10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, reason, stopTimeout); err != nil {
		return err
	}
	return a.Err()
}

func newCheckCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and print the resolved watchdog settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := *cfgPath
			if path == "" {
				path = os.Getenv(watchdog.ConfigEnv)
			}
			cfg, err := config.NewConfigManager(path).Load()
			if err != nil {
				return err
			}
			wc, err := cfg.WatchdogSettings()
			if err != nil {
				return err
			}
			out := map[string]any{
				"tick":              wc.Tick.String(),
				"send_interval":     wc.SendInterval.String(),
				"check_interval":    wc.CheckInterval.String(),
				"shutdown_interval": wc.ShutdownInterval.String(),
				"watchdog_path":     wc.WatchdogPath,
				"marker_env":        wc.MarkerEnv,
				"handshake_timeout": wc.HandshakeTimeout.String(),
				"order":             wc.Order,
				"revive": map[string]any{
					"trip_failures": wc.Revive.TripFailures,
					"base_delay":    wc.Revive.BaseDelay.String(),
					"max_delay":     wc.Revive.MaxDelay.String(),
					"reset_after":   wc.Revive.ResetAfter.String(),
					"rate_per_sec":  wc.Revive.RatePerSec,
					"burst":         wc.Revive.Burst,
				},
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string]any{"watchdog": out}); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
