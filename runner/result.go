package runner

import (
	"fmt"
	"time"

	"github.com/specrunner/specrunner/types"
)

// ResultStats are the run-wide counters. Failed counts assignments whose
// final state is exhausted, not individual failed attempts; Retries counts
// the extra attempts granted.
type ResultStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
	Retries int
}

// RunResult is the frozen aggregation of one run.
type RunResult struct {
	RunID    string
	Phase    RunPhase
	Status   types.UnitState
	Outcomes []types.Outcome
	Stats    ResultStats
	Bailed   bool
	Duration time.Duration
}

// String returns a one-line summary for logs and the final console output.
func (r *RunResult) String() string {
	suffix := ""
	if r.Bailed {
		suffix = " (stopped early: bail threshold reached)"
	}
	return fmt.Sprintf("Run %s: %s - %d total, %d passed, %d failed, %d skipped, %d retries in %.1fs%s",
		r.RunID, r.Status, r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped,
		r.Stats.Retries, r.Duration.Seconds(), suffix)
}
