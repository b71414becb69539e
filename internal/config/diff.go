package config

import "reflect"

// ChangedSections lists the top-level sections that differ between two
// configs, in file order. A nil old config reports every section.
func ChangedSections(old, cur *Config) []string {
	if cur == nil {
		return nil
	}
	if old == nil {
		old = &Config{}
	}
	var out []string
	add := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	add("logging", old.Logging, cur.Logging)
	add("watchdog", old.Watchdog, cur.Watchdog)
	add("revive", old.Revive, cur.Revive)
	add("metrics", old.Metrics, cur.Metrics)
	add("systemd", old.Systemd, cur.Systemd)
	return out
}

// RequiresRestart reports whether a change can only take effect after the
// watchdog is restarted. Only logging applies live.
func RequiresRestart(sections []string) bool {
	for _, s := range sections {
		if s != "logging" {
			return true
		}
	}
	return false
}
