package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocateSplitsBlock(t *testing.T) {
	p := NewPool("c1", 1000)
	off, err := p.Allocate(100)
	require.NoError(t, err)
	assert.Equal(t, 0, off)
	assert.Equal(t, 100, p.UsedSize)
	require.Len(t, p.Blocks, 2)
	assert.False(t, p.Blocks[0].Free)
	assert.True(t, p.Blocks[1].Free)
	assert.Equal(t, 900, p.Blocks[1].Size)
}

func TestPoolAllocateExactFitDoesNotSplit(t *testing.T) {
	p := NewPool("c1", 100)
	_, err := p.Allocate(100)
	require.NoError(t, err)
	assert.Len(t, p.Blocks, 1)
}

func TestPoolAllocateOverCapacityFails(t *testing.T) {
	p := NewPool("c1", 10)
	_, err := p.Allocate(100)
	require.Error(t, err)
}

func TestPoolDeallocateCoalescesNeighbors(t *testing.T) {
	p := NewPool("c1", 300)
	a, err := p.Allocate(100)
	require.NoError(t, err)
	b, err := p.Allocate(100)
	require.NoError(t, err)

	require.NoError(t, p.Deallocate(a))
	require.NoError(t, p.Deallocate(b))

	require.Len(t, p.Blocks, 1)
	assert.True(t, p.Blocks[0].Free)
	assert.Equal(t, 300, p.Blocks[0].Size)
}

func TestPoolGarbageCollectDropsOldFreeBlocks(t *testing.T) {
	p := NewPool("c1", 100)
	off, err := p.Allocate(50)
	require.NoError(t, err)
	require.NoError(t, p.Deallocate(off))
	p.Blocks[0].AllocatedAt = time.Now().Add(-time.Hour)

	collected := p.GarbageCollect(time.Now().Add(-30 * time.Minute))
	assert.Equal(t, 1, collected)
}

func TestManagerAllocateContainerRespectsGlobalLimit(t *testing.T) {
	m := NewManager(100, 80)
	require.NoError(t, m.AllocateContainer("c1", 60))
	err := m.AllocateContainer("c2", 60)
	require.Error(t, err)
}

func TestManagerBlockLifecycleUpdatesStats(t *testing.T) {
	m := NewManager(0, 0)
	require.NoError(t, m.AllocateContainer("c1", 1000))

	off, err := m.AllocateBlock("c1", 100)
	require.NoError(t, err)
	require.NoError(t, m.DeallocateBlock("c1", off))

	st, err := m.Stats("c1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Allocations)
	assert.Equal(t, 1, st.Deallocations)
	assert.Equal(t, 0, st.Used)
}

func TestDetectLeaksFlagsAllocationImbalance(t *testing.T) {
	m := NewManager(0, 0)
	require.NoError(t, m.AllocateContainer("c1", 10000))
	for i := 0; i < 20; i++ {
		_, err := m.AllocateBlock("c1", 10)
		require.NoError(t, err)
	}
	// one deallocation against twenty-one allocations: ratio 21 -> High
	off, err := m.AllocateBlock("c1", 10)
	require.NoError(t, err)
	require.NoError(t, m.DeallocateBlock("c1", off))

	signals := m.DetectLeaks()
	var found bool
	for _, s := range signals {
		if s.Kind == "AllocationImbalance" && s.Severity == SeverityHigh {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDeallocateContainerReleasesGlobalBudget(t *testing.T) {
	m := NewManager(100, 80)
	require.NoError(t, m.AllocateContainer("c1", 60))
	require.NoError(t, m.DeallocateContainer("c1"))
	require.NoError(t, m.AllocateContainer("c2", 60))
}
