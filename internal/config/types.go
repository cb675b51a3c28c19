package config

// Config is the loopd configuration file.
//
// All durations are Go duration strings (e.g. "10ms", "30s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Systemd   SystemdConfig   `json:"systemd"`
	Jobs      []JobConfig     `json:"jobs"`
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

// SchedulerConfig controls the main loop and the scheduler table.
//
// Defaults (when fields are omitted/zero):
//   - capacity: 20 (fixed for the process lifetime; reloads cannot change it)
//   - poll_interval: "10ms"
//   - status_every: "0s" (disabled)
//   - warn_every: "30s"
type SchedulerConfig struct {
	Capacity     int    `json:"capacity,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	// StatusEvery logs table occupancy and counters periodically.
	StatusEvery string `json:"status_every,omitempty"`
	// WarnEvery throttles repeated warnings (e.g. a job that cannot be admitted).
	WarnEvery string `json:"warn_every,omitempty"`
}

// StorageConfig controls the fire journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./loopd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SystemdConfig controls sd_notify integration. Both are no-ops when the
// process is not started by systemd.
type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}

// JobConfig describes one scheduled job.
//
// Schedule forms:
//   - interval: "500ms", "5m", "interval:30s", "every:1h"
//   - HH:MM interval: "02:30"
//   - cron: "*/5 * * * *", "0 30 3 * * *", "@hourly", "cron:0 0 * * *"
type JobConfig struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	// Once fires an interval job a single time instead of repeating.
	Once   bool   `json:"once,omitempty"`
	Action string `json:"action"`

	// log action
	Message string `json:"message,omitempty"`

	// exec action
	Command []string `json:"command,omitempty"`
	Timeout string   `json:"timeout,omitempty"`

	Disabled bool `json:"disabled,omitempty"`
}
