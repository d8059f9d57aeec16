package runner

import (
	"time"
)

// retryDecision is what the ledger tells the coordinator to do with a
// failed attempt.
type retryDecision int

const (
	retryExhausted retryDecision = iota
	retryImmediate               // front of the queue
	retryDeferred                // back of the queue, after unattempted units
)

// retryLedger tracks attempt budgets per assignment and decides requeue
// placement. maxAttempts is specFileRetries+1: the first attempt plus the
// configured retries.
type retryLedger struct {
	maxAttempts int
	deferred    bool
	delay       time.Duration

	attempts map[string]int
	retries  int // total extra attempts granted across the run
}

func newRetryLedger(specFileRetries int, deferred bool, delay time.Duration) *retryLedger {
	return &retryLedger{
		maxAttempts: specFileRetries + 1,
		deferred:    deferred,
		delay:       delay,
		attempts:    make(map[string]int),
	}
}

// RecordFailure consumes one attempt for the assignment and returns what to
// do next. When a retry is granted the assignment's earliest-dispatch time
// is stamped with the configured delay.
func (l *retryLedger) RecordFailure(a *assignment, endedAt time.Time) retryDecision {
	l.attempts[a.cid]++
	a.attempts = l.attempts[a.cid]

	if a.attempts >= l.maxAttempts {
		return retryExhausted
	}

	l.retries++
	if l.delay > 0 {
		a.notBefore = endedAt.Add(l.delay)
	}
	if l.deferred {
		a.deferred = true
		return retryDeferred
	}
	return retryImmediate
}

// RecordSuccess consumes the attempt without granting further ones.
func (l *retryLedger) RecordSuccess(a *assignment) {
	l.attempts[a.cid]++
	a.attempts = l.attempts[a.cid]
}

// Attempts returns the attempts consumed so far by the assignment.
func (l *retryLedger) Attempts(cid string) int {
	return l.attempts[cid]
}

// TotalRetries returns the number of extra attempts granted across the run.
func (l *retryLedger) TotalRetries() int {
	return l.retries
}
