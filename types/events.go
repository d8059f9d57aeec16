package types

import "time"

// RunnerStart is emitted when an assignment is dispatched to a worker slot.
// CID is the stable correlation identifier for that dispatch; reporters use
// it to pair the eventual RunnerEnd.
type RunnerStart struct {
	CID             string         `json:"cid"`
	Specs           []string       `json:"specs"`
	IsMultiremote   bool           `json:"isMultiremote"`
	InstanceOptions map[string]any `json:"instanceOptions,omitempty"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	Retry           int            `json:"retry,omitempty"`
}

// RunnerEnd is emitted when a worker attempt reaches a terminal result.
// Failures is this attempt's failure count; Retries is the number of
// earlier attempts the assignment has consumed. SessionID is the remote
// session the worker reported; workers create their own sessions, so the
// id only exists once the attempt ends.
type RunnerEnd struct {
	CID       string        `json:"cid"`
	Failures  int           `json:"failures"`
	Retries   int           `json:"retries"`
	SessionID string        `json:"sessionId,omitempty"`
	Duration  time.Duration `json:"duration"`
}
