package runner

import "time"

// pendingQueue is the ordered set of assignments waiting for a slot.
// Immediate retries re-enter at the front, deferred retries at the back.
// Only the coordinator goroutine touches it.
type pendingQueue struct {
	items []*assignment
}

func newPendingQueue(assignments []*assignment) *pendingQueue {
	items := make([]*assignment, len(assignments))
	copy(items, assignments)
	return &pendingQueue{items: items}
}

func (q *pendingQueue) Len() int {
	return len(q.items)
}

func (q *pendingQueue) Empty() bool {
	return len(q.items) == 0
}

// PushFront inserts an assignment ahead of everything pending.
func (q *pendingQueue) PushFront(a *assignment) {
	q.items = append([]*assignment{a}, q.items...)
}

// PushBack appends an assignment after everything pending.
func (q *pendingQueue) PushBack(a *assignment) {
	q.items = append(q.items, a)
}

// PopEligible removes and returns the first assignment that is eligible at
// now and whose group the pool can admit. Ineligible or inadmissible
// entries keep their position.
func (q *pendingQueue) PopEligible(now time.Time, admit func(groupKey string) bool) *assignment {
	for i, a := range q.items {
		if !a.eligible(now) {
			continue
		}
		if !admit(a.session.GroupKey) {
			continue
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		return a
	}
	return nil
}

// Drain removes and returns everything still pending, in queue order.
func (q *pendingQueue) Drain() []*assignment {
	items := q.items
	q.items = nil
	return items
}

// NextEligibleAt returns the earliest future dispatch time among queued
// delayed assignments, or the zero time when nothing is waiting on a delay.
func (q *pendingQueue) NextEligibleAt(now time.Time) time.Time {
	var next time.Time
	for _, a := range q.items {
		if a.eligible(now) {
			continue
		}
		if next.IsZero() || a.notBefore.Before(next) {
			next = a.notBefore
		}
	}
	return next
}
