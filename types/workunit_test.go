package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		shard   ShardOptions
		wantErr bool
	}{
		{"single shard", ShardOptions{Total: 1, Current: 1}, false},
		{"last shard", ShardOptions{Total: 4, Current: 4}, false},
		{"zero total", ShardOptions{Total: 0, Current: 1}, true},
		{"zero current", ShardOptions{Total: 2, Current: 0}, true},
		{"current beyond total", ShardOptions{Total: 2, Current: 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.shard.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestShardOwnershipPartitionsExactly(t *testing.T) {
	// Every index must be owned by exactly one shard.
	const total = 3
	const n = 10

	for i := 0; i < n; i++ {
		owners := 0
		for current := 1; current <= total; current++ {
			if (ShardOptions{Total: total, Current: current}).Owns(i) {
				owners++
			}
		}
		require.Equal(t, 1, owners, "index %d", i)
	}

	// Round-robin, not contiguous blocks.
	s1 := ShardOptions{Total: 2, Current: 1}
	assert.True(t, s1.Owns(0))
	assert.False(t, s1.Owns(1))
	assert.True(t, s1.Owns(2))
}

func TestNewWorkUnitCopiesSpecs(t *testing.T) {
	specs := []string{"a.spec.js", "b.spec.js"}
	unit := NewWorkUnit(0, specs)

	specs[0] = "mutated"
	assert.Equal(t, "a.spec.js", unit.Specs[0])
	assert.Equal(t, "unit-0", unit.ID)
}

func TestUnitStateTerminal(t *testing.T) {
	assert.True(t, UnitStatePassed.Terminal())
	assert.True(t, UnitStateFailed.Terminal())
	assert.True(t, UnitStateSkipped.Terminal())
	assert.False(t, UnitStatePending.Terminal())
	assert.False(t, UnitStateRunning.Terminal())
}
