package reporting

import (
	"github.com/specrunner/specrunner/runner"
	"github.com/specrunner/specrunner/types"
)

// Reporter consumes runner lifecycle events and makes them durable. A
// reporter reports whether everything it has accepted so far has been
// flushed; the run's shutdown gate polls that before the process exits.
type Reporter interface {
	Name() string
	RunnerStarted(types.RunnerStart)
	RunnerEnded(types.RunnerEnd)
	// RunCompleted delivers the frozen run result once every assignment is
	// terminal.
	RunCompleted(result *runner.RunResult) error
	// Synchronized reports whether all accepted events are durably written.
	Synchronized() bool
	Close() error
}

// Sinks adapts reporters to the coordinator's event sink slice.
func Sinks(reporters []Reporter) []runner.EventSink {
	sinks := make([]runner.EventSink, 0, len(reporters))
	for _, r := range reporters {
		sinks = append(sinks, r)
	}
	return sinks
}
