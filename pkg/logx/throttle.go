package logx

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle rate-limits log records per key.
//
// Main loops tend to hit the same condition on every iteration (a full
// scheduler table, a broken journal); Throttle lets the first record through
// and then at most one per interval for that key.
type Throttle struct {
	mu    sync.Mutex
	every time.Duration
	lim   map[string]*rate.Limiter
}

// NewThrottle returns a throttle allowing one record per key every interval.
// A non-positive interval disables throttling.
func NewThrottle(every time.Duration) *Throttle {
	return &Throttle{every: every, lim: map[string]*rate.Limiter{}}
}

// Allow reports whether a record for key may be written now.
func (t *Throttle) Allow(key string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.every <= 0 {
		return true
	}
	l := t.lim[key]
	if l == nil {
		l = rate.NewLimiter(rate.Every(t.every), 1)
		t.lim[key] = l
	}
	return l.Allow()
}

// Forget drops the limiter state for key so the next record passes.
func (t *Throttle) Forget(key string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.lim, key)
	t.mu.Unlock()
}

// SetEvery changes the interval and resets all keys.
func (t *Throttle) SetEvery(every time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.every = every
	t.lim = map[string]*rate.Limiter{}
	t.mu.Unlock()
}
