package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RunDirectoryPrefix is the standardized prefix for run directories under
// the output directory.
const RunDirectoryPrefix = "testrun-"

// RunDir creates the directory tree for a run and returns its path.
func RunDir(baseDir, runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return "", fmt.Errorf("baseDir cannot be empty")
	}

	runDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	for _, dir := range []string{baseDir, runDir, filepath.Join(runDir, "workers")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return runDir, nil
}

// WorkerLogSink routes each worker's combined stdout and stderr into the
// run's workers directory. With groupBySpec set, output is filed by spec
// file instead of by cid, so retries of a spec land in one file.
type WorkerLogSink struct {
	runDir      string
	groupBySpec bool
}

func NewWorkerLogSink(runDir string, groupBySpec bool) *WorkerLogSink {
	return &WorkerLogSink{runDir: runDir, groupBySpec: groupBySpec}
}

// Writer opens the log file for one attempt. Files are opened in append
// mode so retries of the same assignment extend the existing log.
func (s *WorkerLogSink) Writer(cid string, specs []string) (io.WriteCloser, error) {
	name := "worker-" + safeFilename(cid)
	if s.groupBySpec && len(specs) > 0 {
		base := filepath.Base(specs[0])
		name = safeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
	}

	path := filepath.Join(s.runDir, "workers", name+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open worker log %s: %w", path, err)
	}
	return file, nil
}

// safeFilename converts a string to a safe filename by replacing
// problematic characters
func safeFilename(s string) string {
	for _, c := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", " "} {
		s = strings.ReplaceAll(s, c, "_")
	}
	return s
}
