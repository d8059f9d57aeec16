package reporting

import (
	"encoding/json"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/specrunner/specrunner/runner"
	"github.com/specrunner/specrunner/types"
)

const eventsFilename = "events.jsonl"

// eventRecord is one line of the events file.
type eventRecord struct {
	Event string             `json:"event"`
	Time  time.Time          `json:"time"`
	Start *types.RunnerStart `json:"start,omitempty"`
	End   *types.RunnerEnd   `json:"end,omitempty"`
	Run   *runSummary        `json:"run,omitempty"`
}

type runSummary struct {
	RunID    string             `json:"runId"`
	Status   types.UnitState    `json:"status"`
	Stats    runner.ResultStats `json:"stats"`
	Bailed   bool               `json:"bailed"`
	Duration time.Duration      `json:"durationNs"`
}

// JSONLReporter appends one JSON line per runner event to events.jsonl in
// the run directory. Writes go through a background writer so the
// coordinator's event loop never blocks on disk.
type JSONLReporter struct {
	log *zap.SugaredLogger
	w   *asyncWriter
}

func NewJSONLReporter(log *zap.SugaredLogger, runDir string) (*JSONLReporter, error) {
	w, err := newAsyncWriter(filepath.Join(runDir, eventsFilename))
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &JSONLReporter{log: log.With("reporter", "jsonl"), w: w}, nil
}

func (r *JSONLReporter) Name() string { return "jsonl" }

func (r *JSONLReporter) RunnerStarted(ev types.RunnerStart) {
	r.append(eventRecord{Event: "runner:start", Time: time.Now(), Start: &ev})
}

func (r *JSONLReporter) RunnerEnded(ev types.RunnerEnd) {
	r.append(eventRecord{Event: "runner:end", Time: time.Now(), End: &ev})
}

func (r *JSONLReporter) RunCompleted(result *runner.RunResult) error {
	r.append(eventRecord{
		Event: "run:complete",
		Time:  time.Now(),
		Run: &runSummary{
			RunID:    result.RunID,
			Status:   result.Status,
			Stats:    result.Stats,
			Bailed:   result.Bailed,
			Duration: result.Duration,
		},
	})
	return nil
}

func (r *JSONLReporter) Synchronized() bool { return r.w.Synchronized() }

func (r *JSONLReporter) Close() error { return r.w.Close() }

func (r *JSONLReporter) append(rec eventRecord) {
	line, err := json.Marshal(rec)
	if err != nil {
		r.log.Errorw("Failed to encode event", "event", rec.Event, "error", err)
		return
	}
	if err := r.w.Write(append(line, '\n')); err != nil {
		r.log.Errorw("Failed to queue event", "event", rec.Event, "error", err)
	}
}
