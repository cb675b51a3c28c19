package sched

import (
	logx "loopsched/pkg/logx"
)

// DefaultCapacity is the table size used when WithCapacity is not given.
const DefaultCapacity = 20

// Repeat and Once name the repeat argument of the Add* methods.
const (
	Repeat = true
	Once   = false
)

// Options is the scheduler configuration.
type Options struct {
	Capacity int
	Clock    Clock
	Logger   logx.Logger
}

// NewOptions creates options with defaults.
func NewOptions(opts ...Option) Options {
	options := Options{
		Capacity: DefaultCapacity,
		Clock:    SystemClock{},
		Logger:   logx.Nop(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Option is for setting options.
type Option func(*Options)

// WithCapacity sets the number of slots, must be greater than 0.
// If not, it will be ignored.
func WithCapacity(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Capacity = n
		}
	}
}

// WithClock sets the time source. A nil clock is ignored.
func WithClock(c Clock) Option {
	return func(o *Options) {
		if c != nil {
			o.Clock = c
		}
	}
}

// WithLogger sets the logger used for admission diagnostics.
func WithLogger(log logx.Logger) Option {
	return func(o *Options) {
		if !log.IsZero() {
			o.Logger = log
		}
	}
}
