// Package runner contains the scheduling core: a single-goroutine
// coordinator that expands sharded work units against session descriptors,
// dispatches the resulting assignments onto a bounded slot pool, feeds
// failed attempts through the retry ledger and aggregates terminal outcomes
// into the final run state.
//
// The coordinator owns all mutable scheduling state. Workers only talk back
// through a channel of attempt results, so the queue, pool, ledger and
// aggregator need no locking.
package runner
