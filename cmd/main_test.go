package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	specrunner "github.com/specrunner/specrunner"
	"github.com/specrunner/specrunner/exitcodes"
)

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "runtime error",
			err:  specrunner.NewRuntimeError(errors.New("bad config")),
			want: exitcodes.RuntimeErr,
		},
		{
			name: "test failure",
			err:  specrunner.NewTestFailureError("2 spec files failed"),
			want: exitcodes.TestFailure,
		},
		{
			name: "reporter stall",
			err:  specrunner.NewReporterSyncError(errors.New("jsonl pending")),
			want: exitcodes.ReporterStall,
		},
		{
			name: "unknown error defaults to test failure",
			err:  errors.New("something else"),
			want: exitcodes.TestFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeForError(tt.err))
		})
	}
}
