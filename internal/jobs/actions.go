package jobs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime/debug"
	"strings"
	"time"

	"loopsched/internal/storage"
	logx "loopsched/pkg/logx"
)

const maxOutput = 512

// fire runs a job's action once and journals the outcome.
// A panicking action is recorded as a failed fire instead of unwinding the loop.
func (r *Registry) fire(j *job) {
	at := r.sched.Clock.Now()
	start := time.Now()
	err := r.safeDo(j)
	took := time.Since(start)

	j.fires++
	j.lastFire = at
	j.lastErr = ""
	if j.def.Once {
		j.done = true
	}

	fields := []logx.Field{
		logx.String("job", j.def.Name),
		logx.String("action", j.def.Action),
		logx.Duration("took", took),
	}
	if err != nil {
		j.failures++
		j.lastErr = err.Error()
		r.log.Warn("job failed", append(fields, logx.Err(err))...)
	} else {
		r.log.Debug("job fired", fields...)
	}

	r.journal(storage.FireRecord{
		At:     at,
		Job:    j.def.Name,
		Action: j.def.Action,
		TookMS: took.Milliseconds(),
		OK:     err == nil,
		Error:  j.lastErr,
	})
}

func (r *Registry) safeDo(j *job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("job panicked", logx.String("job", j.def.Name), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	switch j.def.Action {
	case ActionExec:
		return r.runCommand(j)
	default:
		r.log.Info(j.def.Message, logx.String("job", j.def.Name))
		return nil
	}
}

func (r *Registry) runCommand(j *job) error {
	ctx, cancel := context.WithTimeout(r.ctx, j.def.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, j.def.Command[0], j.def.Command[1:]...)
	out, err := cmd.CombinedOutput()
	text := truncate(strings.TrimSpace(string(out)), maxOutput)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s", j.def.Timeout)
		}
		if text != "" {
			return fmt.Errorf("%w: %s", err, text)
		}
		return err
	}
	if text != "" {
		r.log.Debug("job output", logx.String("job", j.def.Name), logx.String("output", text))
	}
	return nil
}

func (r *Registry) journal(rec storage.FireRecord) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, journalTimeout)
	defer cancel()
	if err := r.store.AppendFire(ctx, rec); err != nil && r.warn.Allow("journal") {
		r.log.Warn("fire journal write failed", logx.String("job", rec.Job), logx.Err(err))
	}
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	return s[:maxN-3] + "..."
}
