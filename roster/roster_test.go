package roster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type stubAllocator struct{ served uint64 }

func (s stubAllocator) Allocate(uint8) uint64 { return s.served }

func TestNewDefaultsEverySlotToNull(t *testing.T) {
	r := New()
	for order := 0; order < Size; order++ {
		require.Equal(t, Null, r.GetAllocator(uint8(order)))
	}
}

func TestSetThenGetRoundTrips(t *testing.T) {
	r := New()
	a := stubAllocator{served: 0x1234}
	r.SetAllocator(7, a)
	require.Equal(t, a, r.GetAllocator(7))
	require.Equal(t, Null, r.GetAllocator(8))
}

func TestNullAllocatorServesZero(t *testing.T) {
	require.Zero(t, Null.Allocate(9))
}

func TestSetAllocatorOverwrites(t *testing.T) {
	r := New()
	r.SetAllocator(3, stubAllocator{served: 1})
	r.SetAllocator(3, stubAllocator{served: 2})
	require.Equal(t, stubAllocator{served: 2}, r.GetAllocator(3))
}
