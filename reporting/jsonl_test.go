package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specrunner/specrunner/runner"
	"github.com/specrunner/specrunner/types"
)

func TestJSONLReporterWritesEventLines(t *testing.T) {
	dir := t.TempDir()
	r, err := NewJSONLReporter(nil, dir)
	require.NoError(t, err)

	r.RunnerStarted(types.RunnerStart{
		CID:   "0-0",
		Specs: []string{"login.spec.js"},
		Retry: 0,
	})
	r.RunnerEnded(types.RunnerEnd{CID: "0-0", Failures: 1, Retries: 0})
	require.NoError(t, r.RunCompleted(&runner.RunResult{
		RunID:    "run-1",
		Status:   types.UnitStateFailed,
		Stats:    runner.ResultStats{Total: 1, Failed: 1},
		Duration: 3 * time.Second,
	}))
	require.NoError(t, r.Close())
	assert.True(t, r.Synchronized())

	data, err := os.ReadFile(filepath.Join(dir, eventsFilename))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var start eventRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &start))
	assert.Equal(t, "runner:start", start.Event)
	require.NotNil(t, start.Start)
	assert.Equal(t, "0-0", start.Start.CID)
	assert.Equal(t, []string{"login.spec.js"}, start.Start.Specs)

	var end eventRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &end))
	assert.Equal(t, "runner:end", end.Event)
	require.NotNil(t, end.End)
	assert.Equal(t, 1, end.End.Failures)

	var complete eventRecord
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &complete))
	assert.Equal(t, "run:complete", complete.Event)
	require.NotNil(t, complete.Run)
	assert.Equal(t, "run-1", complete.Run.RunID)
	assert.Equal(t, types.UnitStateFailed, complete.Run.Status)
}

func TestJSONLReporterUnwritableDir(t *testing.T) {
	_, err := NewJSONLReporter(nil, filepath.Join(t.TempDir(), "does", "not", "exist"))
	assert.Error(t, err)
}

func TestAsyncWriterRejectsWritesAfterClose(t *testing.T) {
	w, err := newAsyncWriter(filepath.Join(t.TempDir(), "out.log"))
	require.NoError(t, err)

	require.NoError(t, w.Write([]byte("one\n")))
	require.NoError(t, w.Close())
	assert.Error(t, w.Write([]byte("two\n")))
}

func TestAsyncWriterPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	w, err := newAsyncWriter(path)
	require.NoError(t, err)

	for _, line := range []string{"a\n", "b\n", "c\n"} {
		require.NoError(t, w.Write([]byte(line)))
	}
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(data))
}
