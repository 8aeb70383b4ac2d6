package quantum

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quantumalloc/roster"
	"quantumalloc/vmem"
)

const testSmallest = 6 // 64 bytes
const testPartitionSizeOrder = 16 // 64 KiB partitions (page multiples) -> 1024 quanta each

func newTestAllocator(t *testing.T, partitionCount uint32) (*QuantumAllocator, *roster.Roster) {
	t.Helper()
	size := uint64(partitionCount) << testPartitionSizeOrder
	base, err := vmem.Reserve(size)
	require.NoError(t, err)
	require.NotZero(t, base)
	t.Cleanup(func() { _ = vmem.Release(base, size) })
	rst := roster.New()
	q := New(Config{
		Roster:             rst,
		Base:               base,
		SmallestOrder:      testSmallest,
		LargestOrder:       testSmallest + 2,
		PartitionSizeOrder: testPartitionSizeOrder,
		PartitionCount:     partitionCount,
	})
	return q, rst
}

func TestAllocateBringsFirstPartitionOnline(t *testing.T) {
	q, _ := newTestAllocator(t, 4)
	a := q.Allocate(testSmallest)
	require.NotZero(t, a)
	require.True(t, q.Contains(a))
}

func TestRosterTakesOverAfterFirstAllocation(t *testing.T) {
	q, rst := newTestAllocator(t, 4)
	require.Equal(t, roster.Null, rst.GetAllocator(testSmallest))
	q.Allocate(testSmallest)
	target := rst.GetAllocator(testSmallest)
	require.NotEqual(t, roster.Null, target)
	require.NotEqual(t, roster.Allocator(q), target, "a fresh partition, not the quantum allocator, should be published")
}

func TestAllocateFillsThenGrowsNewPartition(t *testing.T) {
	q, _ := newTestAllocator(t, 4)
	perPartition := (1 << testPartitionSizeOrder) >> testSmallest
	seen := map[uint64]bool{}
	for i := 0; i < perPartition; i++ {
		a := q.Allocate(testSmallest)
		require.NotZero(t, a)
		require.False(t, seen[a])
		seen[a] = true
	}
	// first partition now full: next allocation must come from a second one.
	next := q.Allocate(testSmallest)
	require.NotZero(t, next)
	require.False(t, seen[next])
}

func TestAllocateExhaustsAllPartitions(t *testing.T) {
	q, _ := newTestAllocator(t, 2)
	perPartition := (1 << testPartitionSizeOrder) >> testSmallest
	for i := 0; i < perPartition*2; i++ {
		require.NotZero(t, q.Allocate(testSmallest))
	}
	require.Zero(t, q.Allocate(testSmallest))
}

func TestDeallocateAndFreeUpPartitionRecycles(t *testing.T) {
	q, _ := newTestAllocator(t, 1)
	perPartition := (1 << testPartitionSizeOrder) >> testSmallest
	var addrs []uint64
	for i := 0; i < perPartition; i++ {
		addrs = append(addrs, q.Allocate(testSmallest))
	}
	// only one partition slot exists; a different order is now starved.
	require.Zero(t, q.Allocate(testSmallest+1))
	for _, a := range addrs {
		q.Deallocate(a)
	}
	// freeing every quantum should let freeUpPartition reclaim the slot
	// for the other order.
	got := q.Allocate(testSmallest + 1)
	require.NotZero(t, got)
}

func TestNextAllocationWalksAscending(t *testing.T) {
	q, _ := newTestAllocator(t, 4)
	a := q.Allocate(testSmallest)
	b := q.Allocate(testSmallest)
	first := q.NextAllocation(0)
	require.Contains(t, []uint64{a, b}, first)
	second := q.NextAllocation(first)
	require.Contains(t, []uint64{a, b}, second)
	require.NotEqual(t, first, second)
	require.Less(t, first, second)
	require.Zero(t, q.NextAllocation(second))
}

func TestStatsCountsLiveQuanta(t *testing.T) {
	q, _ := newTestAllocator(t, 4)
	q.Allocate(testSmallest)
	q.Allocate(testSmallest)
	counts := make([]uint64, 64)
	sizes := make([]uint64, 64)
	q.Stats(counts, sizes)
	require.EqualValues(t, 2, counts[testSmallest])
}

func TestZeroPartitionCountRoutesToNull(t *testing.T) {
	rst := roster.New()
	q := New(Config{
		Roster:             rst,
		Base:               0x400000,
		SmallestOrder:      testSmallest,
		LargestOrder:       testSmallest,
		PartitionSizeOrder: testPartitionSizeOrder,
		PartitionCount:     0,
	})
	require.Zero(t, q.Allocate(testSmallest))
	require.Equal(t, roster.Null, rst.GetAllocator(testSmallest))
}
