package jobs

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"loopsched/internal/config"
)

// Actions understood by the registry.
const (
	ActionLog  = "log"
	ActionExec = "exec"
)

// DefaultExecTimeout bounds exec jobs that do not set a timeout. Exec jobs
// run on the loop goroutine, so the loop stalls for at most this long.
const DefaultExecTimeout = 10 * time.Second

var ErrInvalidJob = errors.New("invalid job")

// Def is a validated job definition.
type Def struct {
	Name    string
	Spec    ParsedSpec
	Once    bool
	Action  string
	Message string
	Command []string
	Timeout time.Duration

	src config.JobConfig
}

// Repeat reports whether the job occupies a repeating slot.
// Cron jobs are always one-shot and re-armed by Reconcile.
func (d Def) Repeat() bool { return d.Spec.Kind == SpecInterval && !d.Once }

// Same reports whether two defs come from identical config and run with
// the same effective timeout.
func (d Def) Same(o Def) bool { return d.Timeout == o.Timeout && reflect.DeepEqual(d.src, o.src) }

// CapExecTimeout lowers the timeout of every exec def above max and returns
// the names it changed. A non-positive max leaves defs untouched.
func CapExecTimeout(defs []Def, maxTimeout time.Duration) []string {
	if maxTimeout <= 0 {
		return nil
	}
	var capped []string
	for i := range defs {
		if defs[i].Action == ActionExec && defs[i].Timeout > maxTimeout {
			defs[i].Timeout = maxTimeout
			capped = append(capped, defs[i].Name)
		}
	}
	return capped
}

// Compile validates job configs in file order. Disabled jobs are skipped.
func Compile(cfgs []config.JobConfig) ([]Def, error) {
	out := make([]Def, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))
	for i, jc := range cfgs {
		d, err := compileOne(jc)
		if err != nil {
			return nil, fmt.Errorf("%w: jobs[%d] (%s): %v", ErrInvalidJob, i, strings.TrimSpace(jc.Name), err)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("%w: jobs[%d]: duplicate name %q", ErrInvalidJob, i, d.Name)
		}
		seen[d.Name] = true
		if jc.Disabled {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func compileOne(jc config.JobConfig) (Def, error) {
	d := Def{
		Name:    strings.TrimSpace(jc.Name),
		Once:    jc.Once,
		Action:  strings.ToLower(strings.TrimSpace(jc.Action)),
		Message: jc.Message,
		Command: jc.Command,
		src:     jc,
	}
	if d.Name == "" {
		return d, errors.New("name required")
	}
	spec, err := ParseSchedule(jc.Schedule)
	if err != nil {
		return d, fmt.Errorf("schedule: %w", err)
	}
	d.Spec = spec

	switch d.Action {
	case ActionLog:
		if strings.TrimSpace(d.Message) == "" {
			d.Message = "job fired"
		}
	case ActionExec:
		if len(d.Command) == 0 || strings.TrimSpace(d.Command[0]) == "" {
			return d, errors.New("command required for exec action")
		}
		if d.Timeout, err = config.JobTimeout(jc, DefaultExecTimeout); err != nil {
			return d, err
		}
	case "":
		return d, errors.New("action required")
	default:
		return d, fmt.Errorf("unknown action %q (use %s or %s)", d.Action, ActionLog, ActionExec)
	}
	return d, nil
}
