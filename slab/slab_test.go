package slab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quantumalloc/bitmath"
)

const testOrder = 27 // 128 MiB, first slab-tier order

func newTestSlabAllocator(maxSlabs uint32) *SlabAllocator {
	return New(Config{MaxSlabs: maxSlabs})
}

func TestReserveAndFindRoundTrip(t *testing.T) {
	s := newTestSlabAllocator(4)
	addr := s.Allocate(testOrder)
	require.NotZero(t, addr)
	require.Equal(t, bitmath.OrderToSize(testOrder), s.AllocationSize(addr))
	require.Equal(t, addr, s.AllocationBase(addr))
}

func TestReserveExhaustsSlots(t *testing.T) {
	s := newTestSlabAllocator(2)
	require.NotZero(t, s.Allocate(testOrder))
	require.NotZero(t, s.Allocate(testOrder))
	require.Zero(t, s.Allocate(testOrder))
}

func TestDeallocateKeepsDescriptorForRecycling(t *testing.T) {
	s := newTestSlabAllocator(1)
	a := s.Allocate(testOrder)
	require.NotZero(t, a)
	s.Deallocate(a)
	require.Zero(t, s.AllocationSize(a), "descriptor bit cleared, address no longer resolves")
	b := s.Allocate(testOrder)
	require.Equal(t, a, b, "recycled slot reuses the same base without another OS reservation")
}

func TestDeallocateUnknownAddressIsNoop(t *testing.T) {
	s := newTestSlabAllocator(1)
	require.NotPanics(t, func() { s.Deallocate(0xDEADBEEF) })
}

func TestNextAllocationStartsFreshAtZero(t *testing.T) {
	s := newTestSlabAllocator(4)
	a := s.Allocate(testOrder)
	b := s.Allocate(testOrder)
	first := s.NextAllocation(0)
	require.Contains(t, []uint64{a, b}, first)
	second := s.NextAllocation(first)
	require.Contains(t, []uint64{a, b}, second)
	require.NotEqual(t, first, second)
	require.Zero(t, s.NextAllocation(second))
}

func TestStatsCountsLiveSlabs(t *testing.T) {
	s := newTestSlabAllocator(4)
	s.Allocate(testOrder)
	s.Allocate(testOrder)
	counts := make([]uint64, 64)
	sizes := make([]uint64, 64)
	s.Stats(counts, sizes)
	require.EqualValues(t, 2, counts[testOrder])
	require.EqualValues(t, 2*bitmath.OrderToSize(testOrder), sizes[testOrder])
}

func TestCloseReleasesAllSlabs(t *testing.T) {
	s := newTestSlabAllocator(2)
	s.Allocate(testOrder)
	s.Allocate(testOrder)
	require.NotPanics(t, s.Close)
}
