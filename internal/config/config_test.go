package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartwatch/internal/watchdog"
)

const sampleYAML = `
logging:
  level: debug
  console: false
watchdog:
  tick: 500ms
  send_interval: 1s
  check_interval: 4s
  watchdog_path: /usr/local/bin/wd
  handshake_timeout: 0s
  order: latest-first
revive:
  trip_failures: 5
  base_delay: 2s
  rate_per_sec: 0.5
metrics:
  enabled: true
  addr: 127.0.0.1:9999
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseYAML(t *testing.T) {
	m := NewConfigManager(writeFile(t, "wd.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Console)
	assert.Equal(t, "./wd.log", cfg.Logging.File.Path, "omitted fields keep defaults")
	assert.True(t, cfg.Systemd.Notify)

	wc, err := cfg.WatchdogSettings()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, wc.Tick)
	assert.Equal(t, time.Second, wc.SendInterval)
	assert.Equal(t, 4*time.Second, wc.CheckInterval)
	assert.Equal(t, time.Second, wc.ShutdownInterval)
	assert.Equal(t, "/usr/local/bin/wd", wc.WatchdogPath)
	assert.Equal(t, watchdog.DefaultMarkerEnv, wc.MarkerEnv)
	assert.Zero(t, wc.HandshakeTimeout, "explicit 0s disables the timeout")
	assert.Equal(t, watchdog.OrderLatestFirst, wc.Order)
	assert.Equal(t, 5, wc.Revive.TripFailures)
	assert.Equal(t, 2*time.Second, wc.Revive.BaseDelay)
	assert.Equal(t, 0.5, wc.Revive.RatePerSec)
	assert.Equal(t, 3, wc.Revive.Burst)
}

func TestParseJSON(t *testing.T) {
	m := NewConfigManager(writeFile(t, "wd.json", `{"watchdog":{"check_interval":"10s"},"systemd":{"notify":false}}`))
	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.False(t, cfg.Systemd.Notify)
	wc, err := cfg.WatchdogSettings()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, wc.CheckInterval)
	assert.Equal(t, 10*time.Second, wc.HandshakeTimeout)
	assert.Equal(t, watchdog.OrderSoonestFirst, wc.Order)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name, file, body, want string
	}{
		{"unknown_field", "a.json", `{"watchdog":{"tik":"1s"}}`, "unknown field"},
		{"unknown_yaml_field", "a.yaml", "metrics:\n  port: 1\n", "unknown field"},
		{"trailing", "a.json", `{} {}`, "trailing data"},
		{"bad_duration", "a.yaml", "watchdog:\n  tick: soon\n", "watchdog.tick"},
		{"negative_duration", "a.yaml", "revive:\n  base_delay: -1s\n", "revive.base_delay"},
		{"send_not_below_check", "a.yaml", "watchdog:\n  send_interval: 5s\n", "must be shorter"},
		{"order", "a.yaml", "watchdog:\n  order: random\n", "watchdog.order"},
		{"level", "a.yaml", "logging:\n  level: loud\n", "logging.level"},
		{"metrics_addr", "a.yaml", "metrics:\n  enabled: true\n  addr: \"\"\n", "metrics.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigManager(writeFile(t, tt.file, tt.body)).Parse()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseWithoutPath(t *testing.T) {
	cfg, err := NewConfigManager("").Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	_, err = NewConfigManager(filepath.Join(t.TempDir(), "missing.yaml")).Parse()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestChangedSections(t *testing.T) {
	a := Default()
	b := Default()
	assert.Empty(t, ChangedSections(a, b))

	b.Logging.Level = "debug"
	assert.Equal(t, []string{"logging"}, ChangedSections(a, b))
	assert.False(t, RequiresRestart(ChangedSections(a, b)))

	b.Watchdog.CheckInterval = "9s"
	b.Metrics.Enabled = true
	got := ChangedSections(a, b)
	assert.Equal(t, []string{"logging", "watchdog", "metrics"}, got)
	assert.True(t, RequiresRestart(got))

	assert.Equal(t, []string{"logging", "metrics", "systemd"}, ChangedSections(nil, a))
}

func TestPublishKeepsNewest(t *testing.T) {
	m := NewConfigManager("")
	ch := m.Subscribe(1)
	first, second := Default(), Default()
	m.publish(first)
	m.publish(second)
	assert.Same(t, second, <-ch)

	m.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
	m.publish(first)
}

func TestWatchReloads(t *testing.T) {
	path := writeFile(t, "wd.yaml", "logging:\n  level: info\n")
	m := NewConfigManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	rejected := make(chan struct{}, 4)
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Logging.Level == "error" {
			rejected <- struct{}{}
			return assert.AnError
		}
		return nil
	})
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// The watcher may not be registered yet; rewrite until it sees a change.
	var got *Config
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600)
		select {
		case got = <-ch:
			return true
		case <-time.After(400 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "debug", got.Logging.Level)
	assert.Equal(t, "debug", m.Get().Logging.Level)

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\n"), 0o600))
	select {
	case <-rejected:
	case <-time.After(3 * time.Second):
		t.Fatal("validator not consulted")
	}
	assert.Equal(t, "debug", m.Get().Logging.Level, "rejected config is not committed")
}

func TestWatchWithoutPathBlocks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, NewConfigManager("").Watch(ctx))
}

func TestEmptyYAMLUsesDefaults(t *testing.T) {
	cfg, err := Decode("wd.yml", []byte("# nothing here\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDurationForms(t *testing.T) {
	cfg, err := Decode("wd.yaml", []byte("watchdog:\n  tick: 1\n  send_interval: \"0.5\"\n  check_interval: 3s\nrevive:\n  base_delay: 2\n"))
	require.NoError(t, err)
	wc, err := cfg.WatchdogSettings()
	require.NoError(t, err)
	assert.Equal(t, time.Second, wc.Tick, "bare number is seconds")
	assert.Equal(t, 500*time.Millisecond, wc.SendInterval)
	assert.Equal(t, 3*time.Second, wc.CheckInterval)
	assert.Equal(t, 2*time.Second, wc.Revive.BaseDelay)

	_, err = Decode("wd.json", []byte(`{"watchdog":{"tick":-2}}`))
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "watchdog.tick", fe.Path)
	assert.ErrorIs(t, err, ErrNegativeDuration)

	_, err = Decode("wd.json", []byte(`{"watchdog":{"tick":true}}`))
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name, file, body, want string
	}{
		{"yaml_ext", "wd.yml", `{}`, FormatYAML},
		{"json_ext", "wd.json", "a: 1", FormatJSON},
		{"sniff_json", "wd.conf", "  {\"logging\":{}}", FormatJSON},
		{"sniff_yaml", "wd.conf", "logging:\n  level: info\n", FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.file, []byte(tt.body)))
		})
	}

	cfg, err := Decode("/etc/heartwatch/config", []byte("logging:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestYAMLRejectsSecondDocument(t *testing.T) {
	_, err := Decode("wd.yaml", []byte("logging:\n  level: info\n---\nlogging:\n  level: debug\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one document")
}

func TestReviveDisableSwitches(t *testing.T) {
	cfg, err := Decode("wd.yaml", []byte("revive:\n  trip_failures: -1\n  rate_per_sec: -1\n"))
	require.NoError(t, err)
	wc, err := cfg.WatchdogSettings()
	require.NoError(t, err)
	assert.Equal(t, -1, wc.Revive.TripFailures)
	assert.Equal(t, -1.0, wc.Revive.RatePerSec)
}
