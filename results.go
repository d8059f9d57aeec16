package specrunner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/specrunner/specrunner/runner"
	"github.com/specrunner/specrunner/types"
)

// printResultsTable prints the results of the run to the console.
func (o *Orchestrator) printResultsTable(result *runner.RunResult) {
	o.config.Log.Infow("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Spec Run Results (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"CID", "Specs", "Capability", "Attempts", "Failures", "Duration", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Specs", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Attempts", Align: text.AlignRight},
		{Name: "Failures", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, outcome := range result.Outcomes {
		cid := outcome.CID
		if cid == "" {
			// Shard-excluded units never got an assignment.
			cid = "-"
		}
		t.AppendRow(table.Row{
			cid,
			specLabel(outcome.Specs),
			outcome.GroupKey,
			outcome.Attempts,
			outcome.Failures,
			formatDuration(outcome.Duration),
			getResultString(outcome.State),
			outcome.Error,
		})
	}

	if result.Status == types.UnitStatePassed {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if result.Status == types.UnitStateSkipped {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d units", result.Stats.Total),
		"",
		fmt.Sprintf("retries: %d", result.Stats.Retries),
		result.Stats.Failed,
		formatDuration(result.Duration),
		getResultString(result.Status),
		"",
	})

	t.Render()
}

// specLabel joins spec file basenames for display.
func specLabel(specs []string) string {
	if len(specs) == 0 {
		return "-"
	}
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, filepath.Base(s))
	}
	return strings.Join(names, ", ")
}

// getResultString returns a short string representing the unit state
func getResultString(state types.UnitState) string {
	switch state {
	case types.UnitStatePassed:
		return "✓ pass"
	case types.UnitStateSkipped:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
