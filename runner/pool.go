package runner

import "fmt"

// SlotState is the lifecycle of a worker slot.
type SlotState string

const (
	SlotIdle     SlotState = "idle"
	SlotBusy     SlotState = "busy"
	SlotDraining SlotState = "draining"
	SlotDead     SlotState = "dead"
)

// WorkerSlot is one pool member. It holds at most one assignment at a time.
type WorkerSlot struct {
	ID       string
	GroupKey string
	State    SlotState
}

// slotPool enforces the two admission ceilings: a global busy-slot maximum
// and a per-capability-group maximum. A slot is granted only when neither
// ceiling would be exceeded. Only the coordinator goroutine calls into it.
type slotPool struct {
	maxGlobal   int
	maxPerGroup int

	busy      int
	groupBusy map[string]int
	nextID    int
	draining  bool
}

func newSlotPool(maxGlobal, maxPerGroup int) *slotPool {
	return &slotPool{
		maxGlobal:   maxGlobal,
		maxPerGroup: maxPerGroup,
		groupBusy:   make(map[string]int),
	}
}

// Admit reports whether a slot for the group could be acquired right now.
func (p *slotPool) Admit(groupKey string) bool {
	if p.draining {
		return false
	}
	if p.busy >= p.maxGlobal {
		return false
	}
	return p.groupBusy[groupKey] < p.maxPerGroup
}

// Acquire grants a busy slot for the group. Callers must check Admit first;
// acquiring past a ceiling is a programming error.
func (p *slotPool) Acquire(groupKey string) *WorkerSlot {
	if !p.Admit(groupKey) {
		panic(fmt.Sprintf("slot acquired past ceiling for group %q", groupKey))
	}
	p.busy++
	p.groupBusy[groupKey]++
	p.nextID++
	return &WorkerSlot{
		ID:       fmt.Sprintf("slot-%d", p.nextID),
		GroupKey: groupKey,
		State:    SlotBusy,
	}
}

// Release returns a slot to the pool. A dead slot still frees its ceilings;
// the slot object itself is discarded.
func (p *slotPool) Release(slot *WorkerSlot) {
	if slot.State != SlotBusy && slot.State != SlotDead {
		return
	}
	p.busy--
	p.groupBusy[slot.GroupKey]--
	if p.groupBusy[slot.GroupKey] == 0 {
		delete(p.groupBusy, slot.GroupKey)
	}
	slot.State = SlotIdle
}

// StartDraining stops all further admissions; busy slots run on.
func (p *slotPool) StartDraining() {
	p.draining = true
}

// Draining reports whether the pool has stopped admitting.
func (p *slotPool) Draining() bool {
	return p.draining
}

// Busy returns the number of currently busy slots.
func (p *slotPool) Busy() int {
	return p.busy
}

// GroupBusy returns the number of busy slots sharing the group key.
func (p *slotPool) GroupBusy(groupKey string) int {
	return p.groupBusy[groupKey]
}
