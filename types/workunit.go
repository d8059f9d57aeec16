package types

import (
	"fmt"
	"strings"
	"time"
)

// UnitState represents the lifecycle state of a work unit assignment.
type UnitState string

const (
	UnitStatePending UnitState = "pending"
	UnitStateRunning UnitState = "running"
	UnitStatePassed  UnitState = "pass"
	UnitStateFailed  UnitState = "fail"
	UnitStateSkipped UnitState = "skip"
)

// Terminal returns true for states that end an assignment's lifecycle.
func (s UnitState) Terminal() bool {
	return s == UnitStatePassed || s == UnitStateFailed || s == UnitStateSkipped
}

// WorkUnit is one or more spec files scheduled and retried together as an
// atomic group. The file list is fixed at partition time; scheduling state
// lives in the runner, never here.
type WorkUnit struct {
	ID    string
	Specs []string
	Shard int // owning shard, 1-based; 0 until shard selection runs
}

// NewWorkUnit creates a work unit over the given spec files.
// Index is the unit's position in the partition and becomes part of its ID.
func NewWorkUnit(index int, specs []string) WorkUnit {
	files := make([]string, len(specs))
	copy(files, specs)
	return WorkUnit{
		ID:    fmt.Sprintf("unit-%d", index),
		Specs: files,
	}
}

// String returns a short human-readable label for logs and tables.
func (u WorkUnit) String() string {
	if len(u.Specs) == 1 {
		return u.Specs[0]
	}
	return fmt.Sprintf("[%s]", strings.Join(u.Specs, ", "))
}

// ShardOptions selects the slice of the partition owned by this invocation.
type ShardOptions struct {
	Total   int `yaml:"total"`
	Current int `yaml:"current"`
}

// Validate checks the shard range invariants.
func (s ShardOptions) Validate() error {
	if s.Total < 1 {
		return fmt.Errorf("shard total must be >= 1, got %d", s.Total)
	}
	if s.Current < 1 || s.Current > s.Total {
		return fmt.Errorf("shard current must be in [1, %d], got %d", s.Total, s.Current)
	}
	return nil
}

// Owns reports whether the work unit at partition index i belongs to the
// current shard. Assignment is round-robin so file-count load stays balanced
// when durations are unknown, and is stable for a fixed partition and total.
func (s ShardOptions) Owns(i int) bool {
	return (i%s.Total)+1 == s.Current
}

// Outcome is the terminal record for one assignment (work unit x session).
// SessionID is the remote session reported by the final attempt's worker.
type Outcome struct {
	UnitID    string
	CID       string
	GroupKey  string
	Specs     []string
	State     UnitState
	Attempts  int
	Failures  int
	SessionID string
	Duration  time.Duration
	Error     string
}
