package sched

import "time"

// SlotInfo describes a used slot.
type SlotInfo struct {
	Index    int
	Kind     Kind
	Owned    bool // the slot holds a scheduler-owned function wrapper
	Repeat   bool
	Delay    time.Duration
	Deadline time.Time
}

// Snapshot returns the used slots in index order.
func (s *Scheduler) Snapshot() []SlotInfo {
	out := make([]SlotInfo, 0, len(s.entries))
	for i := range s.entries {
		e := &s.entries[i]
		if !e.isUsed() {
			continue
		}
		out = append(out, SlotInfo{
			Index:    i,
			Kind:     e.kind,
			Owned:    e.own == owned,
			Repeat:   e.repeat,
			Delay:    e.delay,
			Deadline: e.deadline,
		})
	}
	return out
}
