package sched

import "time"

// entry is one slot of the scheduler table.
//
// A slot is either free (zero value apart from gen) or used with a non-nil
// task and a valid deadline. Wrappers registered through AddFunc and
// AddFuncWithData live inline in fn/fnd so registering them does not allocate.
type entry struct {
	used bool
	own  ownership
	kind Kind

	task Task
	fn   Func
	fnd  FuncWithData

	// closure identity of wrapped functions, taken once at set time
	fnPtr uintptr

	delay    time.Duration
	repeat   bool
	deadline time.Time

	// gen changes on every set and remove so run can tell whether the
	// slot was emptied or reused while its task was running.
	gen uint64
}

func (e *entry) isFree() bool { return !e.used }
func (e *entry) isUsed() bool { return e.used }

// set occupies a free slot. The caller has checked isFree.
func (e *entry) set(task Task, kind Kind, own ownership, delay time.Duration, repeat bool, now time.Time) bool {
	if delay < 0 {
		delay = 0
	}
	e.used = true
	e.own = own
	e.kind = kind
	e.task = task
	e.delay = delay
	e.repeat = repeat
	e.deadline = now.Add(delay)
	e.gen++
	return true
}

func (e *entry) setTask(task Task, delay time.Duration, repeat bool, now time.Time) bool {
	return e.set(task, KindTask, borrowed, delay, repeat, now)
}

func (e *entry) setFunc(fn func(), delay time.Duration, repeat bool, now time.Time) bool {
	e.fn = Func(fn)
	e.fnPtr = funcID(fn)
	return e.set(e.fn, KindFunc, owned, delay, repeat, now)
}

func (e *entry) setFuncWithData(fn func(any), data any, delay time.Duration, repeat bool, now time.Time) bool {
	e.fnd = FuncWithData{Fn: fn, Data: data}
	e.fnPtr = funcWithDataID(fn)
	return e.set(&e.fnd, KindFuncWithData, owned, delay, repeat, now)
}

// ready reports whether the slot is used and its deadline has passed.
func (e *entry) ready(now time.Time) bool {
	return e.used && !now.Before(e.deadline)
}

// run fires the task once, then rearms a repeating slot or frees a one-shot
// slot. The caller has checked ready.
func (e *entry) run(clock Clock) {
	gen := e.gen
	e.task.Run()
	if e.gen != gen {
		return
	}
	if e.repeat {
		e.deadline = clock.Now().Add(e.delay)
		return
	}
	e.remove()
}

// remove frees the slot regardless of readiness. An owned wrapper is
// released with the slot; a borrowed task only loses our reference.
func (e *entry) remove() {
	if !e.used {
		return
	}
	*e = entry{gen: e.gen + 1}
}

func (e *entry) isTask(task Task) bool {
	return e.used && e.kind == KindTask && sameValue(e.task, task)
}

func (e *entry) isFunc(ptr uintptr) bool {
	return e.used && e.kind == KindFunc && e.fnPtr == ptr
}

func (e *entry) isFuncWithData(ptr uintptr, data any) bool {
	return e.used && e.kind == KindFuncWithData && e.fnPtr == ptr && sameValue(e.fnd.Data, data)
}
