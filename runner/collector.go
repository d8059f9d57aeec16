package runner

import (
	"time"

	"github.com/specrunner/specrunner/types"
)

// RunPhase is the run-level state machine: Running until every assignment
// is terminal, Completing while reporters flush, Completed at the end.
type RunPhase string

const (
	PhaseRunning    RunPhase = "running"
	PhaseCompleting RunPhase = "completing"
	PhaseCompleted  RunPhase = "completed"
)

// aggregator accumulates terminal outcomes into the run state. Only the
// coordinator goroutine mutates it; after Finalize the result is frozen.
type aggregator struct {
	runID     string
	startTime time.Time
	outcomes  []types.Outcome
	bailed    bool
}

func newAggregator(runID string) *aggregator {
	return &aggregator{
		runID:     runID,
		startTime: time.Now(),
	}
}

// RecordTerminal stores an assignment's terminal outcome. Exactly one
// terminal outcome is recorded per assignment.
func (g *aggregator) RecordTerminal(outcome types.Outcome) {
	g.outcomes = append(g.outcomes, outcome)
}

// RecordSkipped marks a shard-excluded unit. Skipped units never entered
// scheduling, so they carry no cid or attempts.
func (g *aggregator) RecordSkipped(unit types.WorkUnit) {
	g.outcomes = append(g.outcomes, types.Outcome{
		UnitID: unit.ID,
		Specs:  unit.Specs,
		State:  types.UnitStateSkipped,
	})
}

// MarkBailed records that the run stopped early on the bail threshold.
func (g *aggregator) MarkBailed() {
	g.bailed = true
}

// FailedCount returns the number of assignments terminally failed so far.
// This is the count the bail threshold is checked against.
func (g *aggregator) FailedCount() int {
	n := 0
	for _, o := range g.outcomes {
		if o.State == types.UnitStateFailed {
			n++
		}
	}
	return n
}

// Finalize freezes the aggregation into the run result.
func (g *aggregator) Finalize(totalRetries int) *RunResult {
	result := &RunResult{
		RunID:    g.runID,
		Phase:    PhaseCompleting,
		Outcomes: g.outcomes,
		Bailed:   g.bailed,
		Duration: time.Since(g.startTime),
	}

	for _, o := range g.outcomes {
		result.Stats.Total++
		switch o.State {
		case types.UnitStatePassed:
			result.Stats.Passed++
		case types.UnitStateFailed:
			result.Stats.Failed++
		case types.UnitStateSkipped:
			result.Stats.Skipped++
		}
	}
	result.Stats.Retries = totalRetries
	result.Status = determineRunStatus(result.Stats)
	return result
}

// determineRunStatus prioritizes failure over skip: any failed assignment
// fails the run, an entirely skipped run is a skip, everything else passes.
func determineRunStatus(stats ResultStats) types.UnitState {
	if stats.Failed > 0 {
		return types.UnitStateFailed
	}
	if stats.Total > 0 && stats.Skipped == stats.Total {
		return types.UnitStateSkipped
	}
	return types.UnitStatePassed
}
