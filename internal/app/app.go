// Package app wires config, logging, storage, systemd and the main loop
// into the loopd process.
package app

import (
	"context"
	"fmt"
	"time"

	"loopsched/internal/config"
	"loopsched/internal/jobs"
	"loopsched/internal/runtime/mainloop"
	"loopsched/internal/runtime/supervisor"
	"loopsched/internal/storage"
	logx "loopsched/pkg/logx"
	"loopsched/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log      logx.Logger
	logs     *logx.Service
	notifier *systemd.Notifier
	loop     *mainloop.Loop

	reloads chan *config.Config
}

// NewApp loads the config file and builds every component. Nothing runs
// until Start.
func NewApp(ctx context.Context, cfgPath string) (_ *App, err error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(validate)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LoggingSettings())
	defer func() {
		if err != nil {
			_ = logSvc.Close()
		}
	}()
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))

	sc, err := cfg.StorageSettings()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	notifier := systemd.NewNotifier(systemd.Config{
		Notify:   cfg.Systemd.Notify,
		Watchdog: cfg.Systemd.Watchdog,
	}, log.With(logx.String("comp", "systemd")))

	reloads := cfgm.Subscribe(1)
	loop, err := mainloop.New(ctx, mainloop.Options{
		Config:   cfg,
		Reloads:  reloads,
		Logging:  logSvc,
		Notifier: notifier,
		Store:    store,
		Logger:   log.With(logx.String("comp", "loop")),
	})
	if err != nil {
		cfgm.Unsubscribe(reloads)
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		notifier: notifier,
		loop:     loop,
		reloads:  reloads,
	}, nil
}

// validate rejects a config before it is committed or published.
func validate(_ context.Context, cfg *config.Config) error {
	if _, err := cfg.SchedulerSettings(); err != nil {
		return err
	}
	if _, err := cfg.StorageSettings(); err != nil {
		return err
	}
	_, err := jobs.Compile(cfg.Jobs)
	return err
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the main loop and the config watcher. The loop goroutine is
// the only one touching the scheduler.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return fmt.Errorf("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.sup.Go("mainloop", a.loop.Run)
	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
	)
	a.log.Info("started", logx.String("config", a.cfgm.Path()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notifier.Stopping()
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}
	// The loop must be gone before its table and store are torn down.
	stopped := false
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		stopped = c.Err() == nil || err != c.Err()
		return err
	})
	a.cfgm.Unsubscribe(a.reloads)
	if stopped {
		step("loop", time.Second, func(context.Context) error { return a.loop.Close() })
		a.log.Info("stopped", logx.Uint64("fired", a.loop.Scheduler().Stats().Fired))
	} else {
		a.log.Warn("main loop did not exit in time; skipping close")
	}

	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
