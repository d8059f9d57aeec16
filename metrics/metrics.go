package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/specrunner/specrunner/types"
)

const (
	MetricsNamespace = "specrunner"
)

var (
	Debug                bool = true
	validStates               = []types.UnitState{types.UnitStatePassed, types.UnitStateFailed, types.UnitStateSkipped}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "units_total",
		Help:      "Count of terminal work unit outcomes",
	}, []string{
		"run_id",
		"group",
		"state",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of test runs",
	}, []string{
		"run_id",
		"status",
	})

	runUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_units_total",
		Help:      "Total number of work units in a run",
	}, []string{
		"run_id",
	})

	runUnitsPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_units_passed",
		Help:      "Number of passed work units in a run",
	}, []string{
		"run_id",
	})

	runUnitsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_units_failed",
		Help:      "Number of failed work units in a run",
	}, []string{
		"run_id",
	})

	runRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_retries_total",
		Help:      "Number of retry attempts granted in a run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of test runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		zap.S().Debugw("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordUnit counts one terminal work unit outcome.
func RecordUnit(runID string, group string, state types.UnitState) {
	if !isValidState(state) {
		zap.S().Errorw("RecordUnit - invalid state", "state", state)
		return
	}
	if Debug {
		zap.S().Debugw("metric inc",
			"m", "units_total",
			"run_id", runID,
			"group", group,
			"state", state)
	}
	unitsTotal.WithLabelValues(runID, group, string(state)).Inc()
}

// RecordRun records the aggregate outcome of one run.
func RecordRun(
	runID string,
	status string,
	total int,
	passed int,
	failed int,
	retries int,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, status).Set(1)
	runUnitsTotal.WithLabelValues(runID).Add(float64(total))
	runUnitsPassed.WithLabelValues(runID).Add(float64(passed))
	runUnitsFailed.WithLabelValues(runID).Add(float64(failed))
	runRetriesTotal.WithLabelValues(runID).Add(float64(retries))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidState(state types.UnitState) bool {
	return slices.Contains(validStates, state)
}
