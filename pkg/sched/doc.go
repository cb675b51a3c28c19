// Package sched is a fixed-capacity cooperative task scheduler for main loops.
//
// A Scheduler owns a table of slots allocated once at construction. Callers
// register work with a delay and a repeat flag, then call ScheduleTasks once
// per iteration of their own loop:
//
//	s := sched.New(sched.WithCapacity(8))
//	s.AddFunc(blink, 500*time.Millisecond, sched.Repeat)
//	for {
//		s.ScheduleTasks()
//		// ... rest of the loop body
//	}
//
// Time only advances between ScheduleTasks calls: a task becomes ready once its
// deadline (registration or last fire, plus the delay) is not after the clock's
// current reading, so timing accuracy is bounded by how often the loop polls.
//
// There are no goroutines, timers or locks. A Scheduler must be driven from a
// single goroutine; any other use needs external mutual exclusion.
package sched
