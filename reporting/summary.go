package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/specrunner/specrunner/runner"
	"github.com/specrunner/specrunner/types"
)

const summaryFilename = "summary.txt"

// TextSummaryReporter writes a human-readable run summary once the run
// completes. It ignores the per-runner event stream; everything it needs is
// in the final result.
type TextSummaryReporter struct {
	runDir string
	done   atomic.Bool
}

func NewTextSummaryReporter(runDir string) *TextSummaryReporter {
	r := &TextSummaryReporter{runDir: runDir}
	r.done.Store(true)
	return r
}

func (r *TextSummaryReporter) Name() string { return "summary" }

func (r *TextSummaryReporter) RunnerStarted(types.RunnerStart) {}
func (r *TextSummaryReporter) RunnerEnded(types.RunnerEnd)     {}

func (r *TextSummaryReporter) RunCompleted(result *runner.RunResult) error {
	r.done.Store(false)
	defer r.done.Store(true)

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", result.RunID)
	fmt.Fprintf(&b, "Status:   %s\n", result.Status)
	fmt.Fprintf(&b, "Duration: %s\n", result.Duration.Truncate(time.Millisecond))
	if result.Bailed {
		fmt.Fprintf(&b, "Bailed:   yes (remaining work skipped)\n")
	}
	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "Total: %d  Passed: %d  Failed: %d  Skipped: %d  Retries: %d\n",
		result.Stats.Total, result.Stats.Passed, result.Stats.Failed,
		result.Stats.Skipped, result.Stats.Retries)

	failed := make([]types.Outcome, 0)
	for _, o := range result.Outcomes {
		if o.State == types.UnitStateFailed {
			failed = append(failed, o)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nFailed:\n")
		for _, o := range failed {
			fmt.Fprintf(&b, "  [%s] %s attempts=%d failures=%d", o.CID, o.UnitID, o.Attempts, o.Failures)
			if o.Error != "" {
				fmt.Fprintf(&b, " error=%s", o.Error)
			}
			fmt.Fprintf(&b, "\n")
		}
	}

	return os.WriteFile(filepath.Join(r.runDir, summaryFilename), []byte(b.String()), 0644)
}

func (r *TextSummaryReporter) Synchronized() bool { return r.done.Load() }

func (r *TextSummaryReporter) Close() error { return nil }
