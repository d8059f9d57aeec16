package runner

import (
	"fmt"
	"time"

	"github.com/specrunner/specrunner/types"
)

// assignment is one work unit paired with one session descriptor: the unit
// of dispatch, retry accounting and terminal outcome. Its cid is stable
// across retries so reporters can correlate every attempt of the pairing.
type assignment struct {
	unit    types.WorkUnit
	session types.SessionDescriptor

	cid       string
	attempts  int       // completed attempts
	deferred  bool      // requeued to the back at least once
	notBefore time.Time // earliest dispatch for a delayed retry
}

// expandAssignments crosses the owned work units with the session
// descriptors, units outermost, so units are offered to the pool in
// partition order and each unit visits every capability.
func expandAssignments(units []types.WorkUnit, sessions []types.SessionDescriptor) []*assignment {
	assignments := make([]*assignment, 0, len(units)*len(sessions))
	for unitIdx, unit := range units {
		for capIdx, session := range sessions {
			assignments = append(assignments, &assignment{
				unit:    unit,
				session: session,
				cid:     fmt.Sprintf("%d-%d", capIdx, unitIdx),
			})
		}
	}
	return assignments
}

// eligible reports whether the assignment may be dispatched at the given
// moment; a delayed retry stays queued without blocking anything else.
func (a *assignment) eligible(now time.Time) bool {
	return a.notBefore.IsZero() || !now.Before(a.notBefore)
}
