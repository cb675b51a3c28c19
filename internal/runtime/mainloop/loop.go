// Package mainloop drives one scheduler from a single paced goroutine.
//
// The loop is the only goroutine that touches the scheduler and the job
// registry. Config reloads arrive on a channel and are applied between
// passes, never during one.
package mainloop

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"loopsched/internal/config"
	"loopsched/internal/jobs"
	"loopsched/internal/storage"
	logx "loopsched/pkg/logx"
	"loopsched/pkg/sched"
	"loopsched/pkg/systemd"
)

// Options wires the loop to the rest of the daemon. Everything but Config
// is optional.
type Options struct {
	Config   *config.Config
	Reloads  <-chan *config.Config
	Logging  *logx.Service
	Notifier *systemd.Notifier
	Store    storage.Store
	Clock    sched.Clock
	Logger   logx.Logger
}

// Loop owns the scheduler table and the registry that fills it.
type Loop struct {
	sched   *sched.Scheduler
	reg     *jobs.Registry
	limiter *rate.Limiter

	cfg      *config.Config
	settings config.SchedulerSettings
	reloads  <-chan *config.Config
	logging  *logx.Service
	notifier *systemd.Notifier
	store    storage.Store
	log      logx.Logger

	// kept as fields so RemoveFunc sees the same function value
	pingFn   func()
	reportFn func()
	watchdog time.Duration
	status   time.Duration
}

// New builds the scheduler and registers the configured jobs. ctx bounds
// the commands and journal writes made by job fires.
func New(ctx context.Context, opts Options) (*Loop, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("mainloop: nil config")
	}
	settings, err := opts.Config.SchedulerSettings()
	if err != nil {
		return nil, err
	}
	defs, err := jobs.Compile(opts.Config.Jobs)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = sched.SystemClock{}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = systemd.NewNotifier(systemd.Config{}, log)
	}

	s := sched.New(
		sched.WithCapacity(settings.Capacity),
		sched.WithClock(clock),
		sched.WithLogger(log.With(logx.String("comp", "sched"))),
	)
	l := &Loop{
		sched:    s,
		limiter:  rate.NewLimiter(rate.Every(settings.PollInterval), 1),
		cfg:      opts.Config,
		settings: settings,
		reloads:  opts.Reloads,
		logging:  opts.Logging,
		notifier: notifier,
		store:    opts.Store,
		log:      log,
	}
	l.pingFn = l.pingWatchdog
	l.reportFn = l.report
	l.reg = jobs.NewRegistry(ctx, s, jobs.Options{
		Store:     opts.Store,
		Logger:    log.With(logx.String("comp", "jobs")),
		WarnEvery: settings.WarnEvery,
	})

	// housekeeping takes its slots before any job
	l.armWatchdog()
	l.armReport(settings.StatusEvery)
	l.reg.Sync(l.capExec(defs))
	return l, nil
}

// Scheduler exposes the table for diagnostics.
func (l *Loop) Scheduler() *sched.Scheduler { return l.sched }

// Registry exposes the job registry for diagnostics.
func (l *Loop) Registry() *jobs.Registry { return l.reg }

// Run paces Step at poll_interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.notifier.Ready()
	l.log.Info("main loop started",
		logx.Int("capacity", l.sched.Cap()),
		logx.Int("slots_used", l.sched.Len()),
		logx.Duration("poll_interval", l.settings.PollInterval),
	)
	defer l.log.Info("main loop stopped", logx.Uint64("fired", l.sched.Stats().Fired))

	for {
		if err := l.limiter.Wait(ctx); err != nil {
			// Wait also fails early when the next token lies past ctx's deadline.
			<-ctx.Done()
			return ctx.Err()
		}
		select {
		case cfg, ok := <-l.reloads:
			if ok {
				l.Apply(cfg)
			} else {
				l.reloads = nil
			}
		default:
		}
		l.Step()
	}
}

// Step runs one scheduler pass and then re-admits jobs that need a slot.
func (l *Loop) Step() {
	l.sched.ScheduleTasks()
	l.reg.Reconcile()
}

// Apply switches to a newly loaded config. The table size is fixed at
// startup; a capacity change is logged and ignored.
func (l *Loop) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	ch := config.SummarizeChange(l.cfg, cfg)
	if len(ch.Sections) == 0 {
		return
	}
	settings, err := cfg.SchedulerSettings()
	if err != nil {
		l.log.Error("config reload rejected", logx.Err(err))
		return
	}
	defs, err := jobs.Compile(cfg.Jobs)
	if err != nil {
		l.log.Error("config reload rejected", logx.Err(err))
		return
	}
	l.notifier.Reloading()
	defer l.notifier.Ready()
	l.log.Info("config reloaded", append([]logx.Field{logx.Strings("sections", ch.Sections)}, ch.Attrs...)...)

	if slices.Contains(ch.Sections, "logging") && l.logging != nil {
		l.logging.Apply(cfg.LoggingSettings())
	}
	if config.CapacityChanged(l.cfg, cfg) {
		l.log.Warn("scheduler.capacity changed; restart to apply",
			logx.Int("current", l.sched.Cap()),
			logx.Int("configured", settings.Capacity),
		)
	}
	settings.Capacity = l.sched.Cap()
	if settings.PollInterval != l.settings.PollInterval {
		l.limiter.SetLimit(rate.Every(settings.PollInterval))
	}
	l.reg.SetWarnEvery(settings.WarnEvery)
	if slices.Contains(ch.Sections, "storage") {
		l.swapStore(cfg)
	}
	if slices.Contains(ch.Sections, "systemd") {
		l.notifier.Apply(systemd.Config{Notify: cfg.Systemd.Notify, Watchdog: cfg.Systemd.Watchdog})
		l.armWatchdog()
	}
	if settings.StatusEvery != l.status {
		l.armReport(settings.StatusEvery)
	}

	l.cfg = cfg
	l.settings = settings
	l.reg.Sync(l.capExec(defs))
}

// Close frees every slot and closes the fire journal.
func (l *Loop) Close() error {
	l.reg.Close()
	l.sched.Clear()
	if l.store == nil {
		return nil
	}
	err := l.store.Close()
	l.store = nil
	return err
}

func (l *Loop) swapStore(cfg *config.Config) {
	sc, err := cfg.StorageSettings()
	if err != nil {
		l.log.Error("storage reload failed", logx.Err(err))
		return
	}
	next, err := storage.Open(sc, l.log.With(logx.String("comp", "storage")))
	if err != nil {
		l.log.Error("storage reload failed; keeping previous store", logx.Err(err))
		return
	}
	prev := l.store
	l.store = next
	l.reg.SetStore(next)
	if prev != nil {
		if err := prev.Close(); err != nil {
			l.log.Warn("close previous store", logx.Err(err))
		}
	}
	l.log.Info("storage switched", logx.String("driver", sc.Driver))
}

func (l *Loop) armWatchdog() {
	if l.watchdog > 0 {
		l.sched.RemoveFunc(l.pingFn)
		l.watchdog = 0
	}
	every := l.notifier.WatchdogInterval()
	if every <= 0 {
		return
	}
	if !l.sched.AddFunc(l.pingFn, every, sched.Repeat) {
		l.log.Warn("no free slot for systemd watchdog")
		return
	}
	l.watchdog = every
}

func (l *Loop) armReport(every time.Duration) {
	if l.status > 0 {
		l.sched.RemoveFunc(l.reportFn)
		l.status = 0
	}
	if every <= 0 {
		return
	}
	if !l.sched.AddFunc(l.reportFn, every, sched.Repeat) {
		l.log.Warn("no free slot for status report")
		return
	}
	l.status = every
}

func (l *Loop) pingWatchdog() { l.notifier.Watchdog() }

// capExec keeps exec jobs from holding the loop past half a watchdog ping
// interval, so a running command cannot starve the ping.
func (l *Loop) capExec(defs []jobs.Def) []jobs.Def {
	limit := l.notifier.WatchdogInterval() / 2
	if names := jobs.CapExecTimeout(defs, limit); len(names) > 0 {
		l.log.Warn("exec timeout capped below systemd watchdog",
			logx.Strings("jobs", names),
			logx.Duration("timeout", limit),
		)
	}
	return defs
}

func (l *Loop) report() {
	st := l.sched.Stats()
	used, capacity := l.sched.Len(), l.sched.Cap()
	l.log.Info("scheduler status",
		logx.Int("slots_used", used),
		logx.Int("capacity", capacity),
		logx.Uint64("fired", st.Fired),
		logx.Uint64("rejected", st.Rejected),
		logx.Uint64("removed", st.Removed),
		logx.Strings("blocked", l.reg.Blocked()),
		logx.Any("jobs", l.reg.Status()),
	)
	l.notifier.Status(fmt.Sprintf("%d/%d slots, %d fired", used, capacity, st.Fired))
}
