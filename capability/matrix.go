// Package capability expands the configured capabilities into the session
// descriptors the scheduler pairs with work units.
package capability

import (
	"fmt"

	"github.com/specrunner/specrunner/types"
)

// MultiremoteGroupKey is the concurrency-group key shared by every
// multiremote descriptor; the whole set occupies one slot, so there is one
// group to account against.
const MultiremoteGroupKey = "multiremote"

// Expand resolves the capability configuration into one descriptor per
// logical automation target. A multiremote map becomes a single atomic
// descriptor; its members never occupy separate slots. Concurrency grouping
// keys on the browser name, falling back to the entry's position when no
// name is set.
func Expand(set types.CapabilitySet) []types.SessionDescriptor {
	if set.IsMultiremote() {
		members := make([]types.NamedSession, 0, len(set.Remote))
		for _, name := range set.RemoteNames() {
			members = append(members, types.NamedSession{
				Name:       name,
				Capability: set.Remote[name],
			})
		}
		return []types.SessionDescriptor{{
			Kind:     types.SessionMultiremote,
			GroupKey: MultiremoteGroupKey,
			Members:  members,
		}}
	}

	descriptors := make([]types.SessionDescriptor, 0, len(set.Single))
	for i, cap := range set.Single {
		descriptors = append(descriptors, types.SessionDescriptor{
			Kind:       types.SessionSingle,
			GroupKey:   groupKey(cap, i),
			Capability: cap,
		})
	}
	return descriptors
}

func groupKey(cap types.Capability, index int) string {
	if name := cap.BrowserName(); name != "" {
		return name
	}
	return fmt.Sprintf("capability-%d", index)
}
