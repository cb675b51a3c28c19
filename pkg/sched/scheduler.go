package sched

import (
	"time"

	logx "loopsched/pkg/logx"
)

// Scheduler owns a fixed-size table of slots and fires them from ScheduleTasks.
//
// The zero value is not usable; create one with New.
type Scheduler struct {
	Options // inherited options

	entries []entry
	stats   Stats
}

// Stats are counters since the scheduler was created.
type Stats struct {
	Fired    uint64 // task invocations
	Rejected uint64 // admissions refused (table full or nil task)
	Removed  uint64 // slots freed by Remove* or Clear
}

// New creates a scheduler with all slots free.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{Options: NewOptions(opts...)}
	s.entries = make([]entry, s.Capacity)
	return s
}

// AddTask registers a caller-owned task to run after delay, and every delay
// afterwards if repeat is set. It reports false if the table is full.
//
// The scheduler never releases a task added this way; the caller keeps it
// alive and may register the same task more than once.
func (s *Scheduler) AddTask(task Task, delay time.Duration, repeat bool) bool {
	if isNil(task) {
		return s.reject(KindTask, "nil task")
	}
	i := s.firstFree()
	if i < 0 {
		return s.reject(KindTask, "table full")
	}
	return s.entries[i].setTask(task, delay, repeat, s.Clock.Now())
}

// AddFunc registers fn to run after delay, and every delay afterwards if
// repeat is set. It reports false if the table is full.
func (s *Scheduler) AddFunc(fn func(), delay time.Duration, repeat bool) bool {
	if fn == nil {
		return s.reject(KindFunc, "nil func")
	}
	i := s.firstFree()
	if i < 0 {
		return s.reject(KindFunc, "table full")
	}
	return s.entries[i].setFunc(fn, delay, repeat, s.Clock.Now())
}

// AddFuncWithData registers fn to be called with data after delay, and every
// delay afterwards if repeat is set. It reports false if the table is full.
func (s *Scheduler) AddFuncWithData(fn func(any), data any, delay time.Duration, repeat bool) bool {
	if fn == nil {
		return s.reject(KindFuncWithData, "nil func")
	}
	i := s.firstFree()
	if i < 0 {
		return s.reject(KindFuncWithData, "table full")
	}
	return s.entries[i].setFuncWithData(fn, data, delay, repeat, s.Clock.Now())
}

// TaskExists reports whether task was added with AddTask and is still pending.
func (s *Scheduler) TaskExists(task Task) bool { return s.indexOfTask(task) >= 0 }

// FuncExists reports whether fn was added with AddFunc and is still pending.
func (s *Scheduler) FuncExists(fn func()) bool { return s.indexOfFunc(fn) >= 0 }

// FuncWithDataExists reports whether the fn/data pair was added with
// AddFuncWithData and is still pending.
func (s *Scheduler) FuncWithDataExists(fn func(any), data any) bool {
	return s.indexOfFuncWithData(fn, data) >= 0
}

// RemoveTask frees the first slot holding task. It is a no-op if there is none.
func (s *Scheduler) RemoveTask(task Task) { s.removeIndex(s.indexOfTask(task)) }

// RemoveFunc frees the first slot holding fn. It is a no-op if there is none.
func (s *Scheduler) RemoveFunc(fn func()) { s.removeIndex(s.indexOfFunc(fn)) }

// RemoveFuncWithData frees the first slot holding the fn/data pair.
// It is a no-op if there is none.
func (s *Scheduler) RemoveFuncWithData(fn func(any), data any) {
	s.removeIndex(s.indexOfFuncWithData(fn, data))
}

// ScheduleTasks visits every slot once in index order and fires the ready ones.
// Call it once per iteration of the main loop.
//
// A task may add or remove tasks while it runs; slots after the current one
// see those changes during the same pass, slots before it on the next pass.
func (s *Scheduler) ScheduleTasks() {
	for i := range s.entries {
		e := &s.entries[i]
		if !e.isUsed() {
			continue
		}
		if e.ready(s.Clock.Now()) {
			s.stats.Fired++
			e.run(s.Clock)
		}
	}
}

// Len returns the number of used slots.
func (s *Scheduler) Len() int {
	n := 0
	for i := range s.entries {
		if s.entries[i].isUsed() {
			n++
		}
	}
	return n
}

// Cap returns the table size.
func (s *Scheduler) Cap() int { return len(s.entries) }

// Clear frees every slot.
func (s *Scheduler) Clear() {
	for i := range s.entries {
		s.removeIndex(i)
	}
}

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() Stats { return s.stats }

func (s *Scheduler) firstFree() int {
	for i := range s.entries {
		if s.entries[i].isFree() {
			return i
		}
	}
	return -1
}

func (s *Scheduler) indexOfTask(task Task) int {
	if isNil(task) {
		return -1
	}
	for i := range s.entries {
		if s.entries[i].isTask(task) {
			return i
		}
	}
	return -1
}

func (s *Scheduler) indexOfFunc(fn func()) int {
	ptr := funcID(fn)
	if ptr == 0 {
		return -1
	}
	for i := range s.entries {
		if s.entries[i].isFunc(ptr) {
			return i
		}
	}
	return -1
}

func (s *Scheduler) indexOfFuncWithData(fn func(any), data any) int {
	ptr := funcWithDataID(fn)
	if ptr == 0 {
		return -1
	}
	for i := range s.entries {
		if s.entries[i].isFuncWithData(ptr, data) {
			return i
		}
	}
	return -1
}

func (s *Scheduler) removeIndex(i int) {
	if i < 0 || i >= len(s.entries) || s.entries[i].isFree() {
		return
	}
	s.entries[i].remove()
	s.stats.Removed++
}

func (s *Scheduler) reject(kind Kind, reason string) bool {
	s.stats.Rejected++
	s.Logger.Debug("admission rejected",
		logx.String("kind", kind.String()),
		logx.String("reason", reason),
		logx.Int("capacity", len(s.entries)),
	)
	return false
}
