package config

import (
	"reflect"
	"sort"
	"strings"

	logx "loopsched/pkg/logx"
)

// Change summarizes the difference between two configs.
type Change struct {
	Sections []string     // changed top-level sections, in file order
	Jobs     []string     // added, removed or modified job names, sorted
	Attrs    []logx.Field // structured attrs for the reload log line
}

// CapacityChanged reports whether the scheduler table size differs.
// The table is allocated once, so such a change needs a restart.
func CapacityChanged(oldCfg, newCfg *Config) bool {
	o, _ := oldCfg.SchedulerSettings()
	n, _ := newCfg.SchedulerSettings()
	return o.Capacity != n.Capacity
}

// SummarizeChange compares two configs for logging and for deciding what to
// re-apply. Nil configs are treated as empty.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		ch.Sections = append(ch.Sections, "logging")
		ch.Attrs = append(ch.Attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		ch.Sections = append(ch.Sections, "scheduler")
		ch.Attrs = append(ch.Attrs,
			logx.Int("scheduler.capacity", newCfg.Scheduler.Capacity),
			logx.String("scheduler.poll_interval", strings.TrimSpace(newCfg.Scheduler.PollInterval)),
			logx.Bool("scheduler.capacity_changed", CapacityChanged(oldCfg, newCfg)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		ch.Sections = append(ch.Sections, "storage")
		driver := ""
		if newCfg.Storage != nil {
			driver = newCfg.Storage.Driver
		}
		ch.Attrs = append(ch.Attrs, logx.String("storage.driver", driver))
	}

	if oldCfg.Systemd != newCfg.Systemd {
		ch.Sections = append(ch.Sections, "systemd")
		ch.Attrs = append(ch.Attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	ch.Jobs = changedJobs(oldCfg.Jobs, newCfg.Jobs)
	if len(ch.Jobs) > 0 {
		ch.Sections = append(ch.Sections, "jobs")
		ch.Attrs = append(ch.Attrs,
			logx.Int("jobs.count", len(newCfg.Jobs)),
			logx.String("jobs.changed", strings.Join(ch.Jobs, ",")),
		)
	}
	return ch
}

func changedJobs(oldJobs, newJobs []JobConfig) []string {
	byName := func(js []JobConfig) map[string]JobConfig {
		m := make(map[string]JobConfig, len(js))
		for _, j := range js {
			m[strings.TrimSpace(j.Name)] = j
		}
		return m
	}
	o, n := byName(oldJobs), byName(newJobs)

	var out []string
	for name, nj := range n {
		if oj, ok := o[name]; !ok || !reflect.DeepEqual(oj, nj) {
			out = append(out, name)
		}
	}
	for name := range o {
		if _, ok := n[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
