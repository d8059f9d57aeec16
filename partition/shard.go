package partition

import (
	"github.com/specrunner/specrunner/types"
)

// SelectShard splits the partition into the units owned by the current
// shard and the units skipped on this invocation. Both slices preserve
// partition order, and every unit carries its owning shard number so the
// full partition can be reconstructed across invocations.
func SelectShard(units []types.WorkUnit, shard types.ShardOptions) (owned, skipped []types.WorkUnit) {
	for i := range units {
		unit := units[i]
		unit.Shard = (i % shard.Total) + 1
		if shard.Owns(i) {
			owned = append(owned, unit)
		} else {
			skipped = append(skipped, unit)
		}
	}
	return owned, skipped
}
