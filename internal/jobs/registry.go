package jobs

import (
	"context"
	"time"

	"loopsched/internal/storage"
	logx "loopsched/pkg/logx"
	"loopsched/pkg/sched"
)

// journalTimeout bounds a single fire-journal write from the loop.
const journalTimeout = 250 * time.Millisecond

// Options configures a Registry.
type Options struct {
	Store     storage.Store // optional fire journal
	Logger    logx.Logger
	WarnEvery time.Duration // throttle for repeated admission warnings
}

// Registry keeps the scheduler's slots in line with the configured jobs.
//
// It must be used from the goroutine that calls ScheduleTasks.
type Registry struct {
	ctx   context.Context // bounds exec and journal calls made from fires
	sched *sched.Scheduler
	store storage.Store
	log   logx.Logger
	warn  *logx.Throttle

	jobs  map[string]*job
	order []string
}

// JobStatus is a point-in-time view of a job.
type JobStatus struct {
	Name     string    `json:"name"`
	Action   string    `json:"action"`
	Schedule string    `json:"schedule"`
	Pending  bool      `json:"pending"`        // holds a scheduler slot
	Done     bool      `json:"done,omitempty"` // once job that already fired
	Fires    uint64    `json:"fires"`
	Failures uint64    `json:"failures,omitempty"`
	LastFire time.Time `json:"last_fire,omitzero"`
	LastErr  string    `json:"last_err,omitempty"`
}

type job struct {
	reg *Registry
	def Def

	done     bool
	blocked  bool // last admission failed
	fires    uint64
	failures uint64
	lastFire time.Time
	lastErr  string
}

// NewRegistry returns an empty registry bound to s.
func NewRegistry(ctx context.Context, s *sched.Scheduler, opts Options) *Registry {
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		ctx:   ctx,
		sched: s,
		store: opts.Store,
		log:   log,
		warn:  logx.NewThrottle(opts.WarnEvery),
		jobs:  map[string]*job{},
	}
}

// SetStore swaps the fire journal. A nil store disables journaling.
func (r *Registry) SetStore(st storage.Store) { r.store = st }

// SetWarnEvery changes the admission warning throttle.
func (r *Registry) SetWarnEvery(d time.Duration) { r.warn.SetEvery(d) }

// Sync replaces the job set. Unchanged jobs keep their slot and deadline;
// changed and removed jobs lose their slot; new and changed jobs are admitted.
func (r *Registry) Sync(defs []Def) {
	next := make(map[string]*job, len(defs))
	order := make([]string, 0, len(defs))
	for _, d := range defs {
		order = append(order, d.Name)
		if old, ok := r.jobs[d.Name]; ok && old.def.Same(d) {
			next[d.Name] = old
			continue
		}
		if old, ok := r.jobs[d.Name]; ok {
			old.remove()
			r.log.Info("job changed", logx.String("job", d.Name))
		} else {
			r.log.Info("job added", logx.String("job", d.Name), logx.Stringer("schedule", d.Spec))
		}
		next[d.Name] = &job{reg: r, def: d}
	}
	for name, old := range r.jobs {
		if _, ok := next[name]; !ok {
			old.remove()
			r.warn.Forget(name)
			r.log.Info("job removed", logx.String("job", name))
		}
	}
	r.jobs = next
	r.order = order
	r.Reconcile()
}

// Reconcile admits every job that should hold a slot but does not: new jobs,
// cron jobs after their fire, and jobs that previously found the table full.
// Call it after each ScheduleTasks.
func (r *Registry) Reconcile() {
	now := r.sched.Clock.Now()
	for _, name := range r.order {
		j := r.jobs[name]
		if j == nil || j.done || j.pending() {
			continue
		}
		j.admit(now)
	}
}

// Remove drops a job's slot and forgets it.
func (r *Registry) Remove(name string) {
	j, ok := r.jobs[name]
	if !ok {
		return
	}
	j.remove()
	delete(r.jobs, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Close frees every job slot.
func (r *Registry) Close() {
	for _, j := range r.jobs {
		j.remove()
	}
	r.jobs = map[string]*job{}
	r.order = nil
}

// Names returns the job names in config order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Blocked returns the jobs whose last admission failed.
func (r *Registry) Blocked() []string {
	var out []string
	for _, name := range r.order {
		if j := r.jobs[name]; j != nil && j.blocked {
			out = append(out, name)
		}
	}
	return out
}

// Status returns a view of every job in config order.
func (r *Registry) Status() []JobStatus {
	out := make([]JobStatus, 0, len(r.order))
	for _, name := range r.order {
		j := r.jobs[name]
		if j == nil {
			continue
		}
		out = append(out, JobStatus{
			Name:     name,
			Action:   j.def.Action,
			Schedule: j.def.Spec.String(),
			Pending:  j.pending(),
			Done:     j.done,
			Fires:    j.fires,
			Failures: j.failures,
			LastFire: j.lastFire,
			LastErr:  j.lastErr,
		})
	}
	return out
}

// Run implements sched.Task; log jobs are registered as direct tasks.
func (j *job) Run() { j.reg.fire(j) }

// runExec is the function registered for exec jobs; the job is its data.
func runExec(data any) {
	j := data.(*job)
	j.reg.fire(j)
}

func (j *job) pending() bool {
	s := j.reg.sched
	if j.def.Action == ActionExec {
		return s.FuncWithDataExists(runExec, j)
	}
	return s.TaskExists(j)
}

func (j *job) admit(now time.Time) {
	r := j.reg
	delay := j.def.Spec.Delay(now)
	var ok bool
	if j.def.Action == ActionExec {
		ok = r.sched.AddFuncWithData(runExec, j, delay, j.def.Repeat())
	} else {
		ok = r.sched.AddTask(j, delay, j.def.Repeat())
	}

	if !ok {
		j.blocked = true
		if r.warn.Allow(j.def.Name) {
			r.log.Warn("job not admitted: scheduler table full",
				logx.String("job", j.def.Name),
				logx.Int("capacity", r.sched.Cap()),
			)
		}
		return
	}
	if j.blocked {
		j.blocked = false
		r.warn.Forget(j.def.Name)
		r.log.Info("job admitted after retry", logx.String("job", j.def.Name))
	}
	r.log.Debug("job armed", logx.String("job", j.def.Name), logx.Duration("delay", delay), logx.Bool("repeat", j.def.Repeat()))
}

func (j *job) remove() {
	s := j.reg.sched
	if j.def.Action == ActionExec {
		s.RemoveFuncWithData(runExec, j)
		return
	}
	s.RemoveTask(j)
}
