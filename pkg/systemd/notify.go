// Package systemd reports service state to systemd over sd_notify.
//
// Every call is a no-op when the process was not started by systemd
// (NOTIFY_SOCKET unset) or when the feature is disabled in config.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "loopsched/pkg/logx"
)

// Config selects which notifications are sent.
type Config struct {
	Notify   bool
	Watchdog bool
}

// Notifier sends sd_notify messages.
type Notifier struct {
	cfg Config
	log logx.Logger

	notify      func(unsetEnv bool, state string) (bool, error)
	watchdogEnv func(unsetEnv bool) (time.Duration, error)
}

// Option replaces the sd_notify transport, mostly for tests.
type Option func(*Notifier)

// WithNotifyFunc sends states through fn instead of daemon.SdNotify.
func WithNotifyFunc(fn func(unsetEnv bool, state string) (bool, error)) Option {
	return func(n *Notifier) {
		if fn != nil {
			n.notify = fn
		}
	}
}

// WithWatchdogFunc reads the watchdog timeout from fn instead of
// daemon.SdWatchdogEnabled.
func WithWatchdogFunc(fn func(unsetEnv bool) (time.Duration, error)) Option {
	return func(n *Notifier) {
		if fn != nil {
			n.watchdogEnv = fn
		}
	}
}

func NewNotifier(cfg Config, log logx.Logger, opts ...Option) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{
		cfg:         cfg,
		log:         log,
		notify:      daemon.SdNotify,
		watchdogEnv: daemon.SdWatchdogEnabled,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Apply swaps the config (e.g. after a reload).
func (n *Notifier) Apply(cfg Config) { n.cfg = cfg }

func (n *Notifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Reloading announces a config reload; follow it with Ready once applied.
func (n *Notifier) Reloading() { n.send(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

// Watchdog pings the service watchdog.
func (n *Notifier) Watchdog() {
	if !n.cfg.Watchdog {
		return
	}
	n.send(daemon.SdNotifyWatchdog)
}

// WatchdogInterval returns how often Watchdog should be called, half the
// WatchdogSec configured on the unit, or 0 when the watchdog is off.
func (n *Notifier) WatchdogInterval() time.Duration {
	if !n.cfg.Watchdog {
		return 0
	}
	d, err := n.watchdogEnv(false)
	if err != nil {
		n.log.Warn("systemd watchdog env invalid", logx.Err(err))
		return 0
	}
	return d / 2
}

func (n *Notifier) send(state string) {
	if !n.cfg.Notify {
		return
	}
	sent, err := n.notify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Trace("sd_notify", logx.String("state", state))
	}
}
