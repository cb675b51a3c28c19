package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"loopsched/internal/storage"
	logx "loopsched/pkg/logx"
)

const (
	DefaultCapacity     = 20
	DefaultPollInterval = 10 * time.Millisecond
	DefaultWarnEvery    = 30 * time.Second
)

// SchedulerSettings is SchedulerConfig with defaults applied and durations parsed.
type SchedulerSettings struct {
	Capacity     int
	PollInterval time.Duration
	StatusEvery  time.Duration
	WarnEvery    time.Duration
}

// SchedulerSettings resolves the scheduler section.
func (c *Config) SchedulerSettings() (SchedulerSettings, error) {
	sc := c.Scheduler
	out := SchedulerSettings{Capacity: sc.Capacity}
	if out.Capacity < 0 {
		return out, errors.New("scheduler.capacity: must be >= 0")
	}
	if out.Capacity == 0 {
		out.Capacity = DefaultCapacity
	}
	var err error
	if out.PollInterval, err = durationOr("scheduler.poll_interval", sc.PollInterval, DefaultPollInterval); err != nil {
		return out, err
	}
	if out.StatusEvery, err = duration("scheduler.status_every", sc.StatusEvery); err != nil {
		return out, err
	}
	if out.WarnEvery, err = durationOr("scheduler.warn_every", sc.WarnEvery, DefaultWarnEvery); err != nil {
		return out, err
	}
	return out, nil
}

// StorageSettings resolves the storage section. A nil section disables storage.
func (c *Config) StorageSettings() (storage.Config, error) {
	if c.Storage == nil {
		return storage.Config{}, nil
	}
	bt, err := duration("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	if !storage.ValidDriver(c.Storage.Driver) {
		return storage.Config{}, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	return storage.Config{
		Driver:      strings.TrimSpace(c.Storage.Driver),
		Path:        strings.TrimSpace(c.Storage.Path),
		BusyTimeout: bt,
	}, nil
}

// LoggingSettings converts the logging section for logx.
func (c *Config) LoggingSettings() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// Validate checks everything except job schedules and actions, which the
// jobs package compiles.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if !logx.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	if _, err := c.SchedulerSettings(); err != nil {
		return err
	}
	if _, err := c.StorageSettings(); err != nil {
		return err
	}
	seen := make(map[string]int, len(c.Jobs))
	for i, j := range c.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("jobs[%d].name: required", i)
		}
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("jobs[%d].name: %q already used by jobs[%d]", i, name, prev)
		}
		seen[name] = i
		if _, err := duration(fmt.Sprintf("jobs[%d].timeout", i), j.Timeout); err != nil {
			return err
		}
	}
	return nil
}

func duration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func durationOr(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := duration(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// JobTimeout parses a job's timeout, returning def when unset.
func JobTimeout(j JobConfig, def time.Duration) (time.Duration, error) {
	return durationOr("timeout", j.Timeout, def)
}
