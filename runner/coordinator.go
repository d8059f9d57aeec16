package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/specrunner/specrunner/types"
)

// EventSink receives the runner lifecycle events. Reporters implement it.
type EventSink interface {
	RunnerStarted(types.RunnerStart)
	RunnerEnded(types.RunnerEnd)
}

// Config parameterizes the coordinator. All limits come from the run
// definition; the launcher is injected so tests never spawn processes.
type Config struct {
	Log      *zap.SugaredLogger
	Launcher Launcher
	Sinks    []EventSink

	// RunID identifies the run in events and logs. Generated when empty.
	RunID string

	MaxInstances              int
	MaxInstancesPerCapability int

	SpecFileRetries int
	RetriesDeferred bool
	RetryDelay      time.Duration

	Bail         int
	DrainGrace   time.Duration
	RetryDrained bool // whether a drain-killed attempt re-enters the retry policy
}

// Coordinator drives a run: it owns the pending queue, the slot pool, the
// retry ledger and the aggregator, all mutated only on its own goroutine.
type Coordinator struct {
	cfg Config
	log *zap.SugaredLogger
}

// NewCoordinator validates the config and builds a coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}
	if cfg.MaxInstances < 1 {
		return nil, fmt.Errorf("maxInstances must be >= 1, got %d", cfg.MaxInstances)
	}
	if cfg.MaxInstancesPerCapability < 1 {
		cfg.MaxInstancesPerCapability = cfg.MaxInstances
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	return &Coordinator{cfg: cfg, log: cfg.Log.With("component", "coordinator")}, nil
}

// attemptResult is what a worker goroutine reports back to the coordinator.
type attemptResult struct {
	a    *assignment
	slot *WorkerSlot
	res  LaunchResult
	err  error
}

// Run schedules every owned unit against every session until all
// assignments are terminal, then returns the frozen run result. Skipped
// units are recorded but never scheduled. Cancellation of ctx drains the
// pool: in-flight attempts get the configured grace before being killed.
func (c *Coordinator) Run(ctx context.Context, owned, skipped []types.WorkUnit, sessions []types.SessionDescriptor) (*RunResult, error) {
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no session descriptors to schedule against")
	}

	runID := c.cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	agg := newAggregator(runID)
	for _, unit := range skipped {
		agg.RecordSkipped(unit)
	}

	assignments := expandAssignments(owned, sessions)
	queue := newPendingQueue(assignments)
	pool := newSlotPool(c.cfg.MaxInstances, c.cfg.MaxInstancesPerCapability)
	ledger := newRetryLedger(c.cfg.SpecFileRetries, c.cfg.RetriesDeferred, c.cfg.RetryDelay)
	events := make(chan attemptResult, c.cfg.MaxInstances)

	// Worker lifetime is decoupled from ctx so draining attempts can run to
	// completion; killWorkers enforces the grace deadline.
	workerCtx, killWorkers := context.WithCancel(context.Background())
	defer killWorkers()

	c.log.Infow("Run starting",
		"runId", runID,
		"units", len(owned),
		"skipped", len(skipped),
		"sessions", len(sessions),
		"assignments", len(assignments),
		"maxInstances", c.cfg.MaxInstances,
		"maxInstancesPerCapability", c.cfg.MaxInstancesPerCapability)

	inflight := 0
	var graceCh <-chan time.Time
	interrupt := ctx.Done()

	for {
		if !pool.Draining() {
			inflight += c.dispatchEligible(workerCtx, queue, pool, ledger, events)
		}

		if inflight == 0 {
			if queue.Empty() || pool.Draining() {
				break
			}
			// Everything pending is a delayed retry; wait for the timer.
		}

		var delayCh <-chan time.Time
		var delayTimer *time.Timer
		if next := queue.NextEligibleAt(time.Now()); !next.IsZero() && !pool.Draining() {
			delayTimer = time.NewTimer(time.Until(next))
			delayCh = delayTimer.C
		}

		select {
		case res := <-events:
			inflight--
			c.handleAttempt(res, queue, pool, ledger, agg)

		case <-delayCh:
			// A delayed retry became eligible; redispatch on the next pass.

		case <-interrupt:
			interrupt = nil
			c.log.Warnw("Interrupt received, draining worker pool", "grace", c.cfg.DrainGrace)
			pool.StartDraining()
			if c.cfg.DrainGrace > 0 {
				graceCh = time.After(c.cfg.DrainGrace)
			} else {
				killWorkers()
			}

		case <-graceCh:
			graceCh = nil
			c.log.Warnw("Drain grace elapsed, killing in-flight workers", "inflight", inflight)
			killWorkers()
		}

		if delayTimer != nil {
			delayTimer.Stop()
		}
	}

	// Anything still queued was never granted a slot before draining began.
	for _, a := range queue.Drain() {
		agg.RecordTerminal(types.Outcome{
			UnitID:   a.unit.ID,
			CID:      a.cid,
			GroupKey: a.session.GroupKey,
			Specs:    a.unit.Specs,
			State:    types.UnitStateSkipped,
			Attempts: ledger.Attempts(a.cid),
			Error:    "not dispatched: run stopped before a slot was granted",
		})
	}

	result := agg.Finalize(ledger.TotalRetries())
	c.log.Infow("Run completing",
		"runId", runID,
		"status", result.Status,
		"failed", result.Stats.Failed,
		"retries", result.Stats.Retries,
		"bailed", result.Bailed)
	return result, nil
}

// dispatchEligible grants slots to pending assignments until a ceiling or
// the queue runs out. Returns the number of attempts started.
func (c *Coordinator) dispatchEligible(workerCtx context.Context, queue *pendingQueue, pool *slotPool, ledger *retryLedger, events chan<- attemptResult) int {
	started := 0
	now := time.Now()
	for {
		a := queue.PopEligible(now, pool.Admit)
		if a == nil {
			return started
		}
		slot := pool.Acquire(a.session.GroupKey)
		attempt := ledger.Attempts(a.cid)

		c.emitStart(a, attempt)
		c.log.Debugw("Dispatching assignment",
			"cid", a.cid, "slot", slot.ID, "group", slot.GroupKey, "attempt", attempt, "specs", a.unit.Specs)

		go func(a *assignment, slot *WorkerSlot, attempt int) {
			res, err := c.cfg.Launcher.Launch(workerCtx, LaunchRequest{
				CID:     a.cid,
				Unit:    a.unit,
				Session: a.session,
				Attempt: attempt,
			})
			events <- attemptResult{a: a, slot: slot, res: res, err: err}
		}(a, slot, attempt)
		started++
	}
}

// handleAttempt processes one completed attempt: releases the slot, emits
// RunnerEnd, consults the retry ledger and checks the bail threshold.
func (c *Coordinator) handleAttempt(res attemptResult, queue *pendingQueue, pool *slotPool, ledger *retryLedger, agg *aggregator) {
	a := res.a
	endedAt := time.Now()
	killed := errors.Is(res.err, context.Canceled)
	if killed {
		res.slot.State = SlotDead
	}
	pool.Release(res.slot)

	failures := res.res.Failures
	if res.err != nil && failures == 0 {
		// A spawn failure or infra error counts as one failed attempt.
		failures = 1
	}

	c.emitEnd(a, res.res, failures, ledger.Attempts(a.cid))

	if res.err == nil && failures == 0 {
		ledger.RecordSuccess(a)
		agg.RecordTerminal(types.Outcome{
			UnitID:    a.unit.ID,
			CID:       a.cid,
			GroupKey:  a.session.GroupKey,
			Specs:     a.unit.Specs,
			State:     types.UnitStatePassed,
			Attempts:  a.attempts,
			SessionID: res.res.SessionID,
			Duration:  res.res.Duration,
		})
		c.log.Debugw("Assignment passed", "cid", a.cid, "attempts", a.attempts)
		return
	}

	if killed && !c.cfg.RetryDrained {
		// A drain-deadline kill is not a reported failure; it is terminal
		// unless retries for drained attempts are explicitly enabled.
		ledger.RecordSuccess(a) // consume the attempt without granting more
		agg.RecordTerminal(types.Outcome{
			UnitID:    a.unit.ID,
			CID:       a.cid,
			GroupKey:  a.session.GroupKey,
			Specs:     a.unit.Specs,
			State:     types.UnitStateFailed,
			Attempts:  a.attempts,
			Failures:  failures,
			SessionID: res.res.SessionID,
			Duration:  res.res.Duration,
			Error:     errString(res.err),
		})
		return
	}

	switch ledger.RecordFailure(a, endedAt) {
	case retryImmediate:
		c.log.Infow("Retrying assignment immediately", "cid", a.cid, "attempt", a.attempts)
		queue.PushFront(a)
	case retryDeferred:
		c.log.Infow("Deferring assignment retry", "cid", a.cid, "attempt", a.attempts, "notBefore", a.notBefore)
		queue.PushBack(a)
	case retryExhausted:
		agg.RecordTerminal(types.Outcome{
			UnitID:    a.unit.ID,
			CID:       a.cid,
			GroupKey:  a.session.GroupKey,
			Specs:     a.unit.Specs,
			State:     types.UnitStateFailed,
			Attempts:  a.attempts,
			Failures:  failures,
			SessionID: res.res.SessionID,
			Duration:  res.res.Duration,
			Error:     errString(res.err),
		})
		c.log.Warnw("Assignment failed after exhausting retries", "cid", a.cid, "attempts", a.attempts)

		if c.cfg.Bail > 0 && agg.FailedCount() >= c.cfg.Bail && !pool.Draining() {
			c.log.Warnw("Bail threshold reached, draining worker pool", "bail", c.cfg.Bail)
			agg.MarkBailed()
			pool.StartDraining()
		}
	}
}

func (c *Coordinator) emitStart(a *assignment, attempt int) {
	ev := types.RunnerStart{
		CID:             a.cid,
		Specs:           a.unit.Specs,
		IsMultiremote:   a.session.IsMultiremote(),
		InstanceOptions: a.session.InstanceOptions(),
		Retry:           attempt,
	}
	if !a.session.IsMultiremote() {
		ev.Capabilities = a.session.Capability
	}
	for _, sink := range c.cfg.Sinks {
		sink.RunnerStarted(ev)
	}
}

func (c *Coordinator) emitEnd(a *assignment, res LaunchResult, failures, retries int) {
	ev := types.RunnerEnd{
		CID:       a.cid,
		Failures:  failures,
		Retries:   retries,
		SessionID: res.SessionID,
		Duration:  res.Duration,
	}
	for _, sink := range c.cfg.Sinks {
		sink.RunnerEnded(ev)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
