// Package slab implements the large, one-off, self-aligned reservation
// tier: allocations at or above 2^(LargestSizeOrder+1) served directly
// from the OS and tracked individually, with recyclable descriptors.
package slab

import (
	"quantumalloc/bitmath"
	"quantumalloc/internal/alloclog"
	"quantumalloc/registry"
	"quantumalloc/vmem"

	"log/slog"
)

type descriptor struct {
	base, size uint64
}

// SlabAllocator holds maxCount slab slots and a registry of occupied
// slots. isShared is not stored separately: only the registry's atomic
// strategy matters, since a descriptor is mutated only by the caller that
// has just claimed its registry bit through FindFree (and by Close).
type SlabAllocator struct {
	isSecure bool
	registry *registry.Registry
	slots    []descriptor
	log      *slog.Logger
}

// Config bundles the construction parameters for a SlabAllocator.
type Config struct {
	IsShared, IsSecure bool
	MaxSlabs           uint32
	Log                *slog.Logger
}

// New builds a SlabAllocator with cfg.MaxSlabs empty slots.
func New(cfg Config) *SlabAllocator {
	var reg *registry.Registry
	if cfg.IsShared {
		reg = registry.NewShared(cfg.MaxSlabs)
	} else {
		reg = registry.NewConfined(cfg.MaxSlabs)
	}
	return &SlabAllocator{
		isSecure: cfg.IsSecure,
		registry: reg,
		slots:    make([]descriptor, cfg.MaxSlabs),
		log:      alloclog.Or(cfg.Log),
	}
}

// Allocate serves one slab of size 2^order via Reserve.
func (s *SlabAllocator) Allocate(order uint8) uint64 {
	return s.Reserve(bitmath.OrderToSize(order))
}

// Reserve serves a slab of exactly size bytes, self-aligned to size.
// Recycles a prior slab in the claimed slot when it is large enough;
// otherwise releases it and reserves fresh from the OS.
func (s *SlabAllocator) Reserve(size uint64) uint64 {
	idx := s.registry.FindFree()
	if idx == bitmath.NotFound {
		return 0
	}
	slot := &s.slots[idx]
	if slot.base != 0 && slot.size >= size {
		if slot.size > size {
			_ = vmem.Release(slot.base+size, slot.size-size)
		}
		if s.isSecure {
			if err := vmem.Commit(slot.base, size); err != nil {
				s.registry.Free(uint32(idx))
				return 0
			}
			vmem.Clear(slot.base, size)
		}
		base := slot.base
		slot.size = size
		return base
	}
	if slot.base != 0 {
		_ = vmem.Release(slot.base, slot.size)
		slot.base, slot.size = 0, 0
	}
	addr, err := vmem.ReserveAligned(size, size)
	if err != nil || addr == 0 {
		s.registry.Free(uint32(idx))
		return 0
	}
	if err := vmem.Commit(addr, size); err != nil {
		_ = vmem.Release(addr, size)
		s.registry.Free(uint32(idx))
		return 0
	}
	slot.base, slot.size = addr, size
	return addr
}

func (s *SlabAllocator) find(addr uint64) int {
	for i := range s.slots {
		if !s.registry.IsSet(uint32(i)) {
			continue
		}
		sl := &s.slots[i]
		if addr >= sl.base && addr < sl.base+sl.size {
			return i
		}
	}
	return bitmath.NotFound
}

// Deallocate clears addr's occupancy bit but keeps its descriptor so a
// later Reserve of a compatible size can recycle it without an OS call.
// Unrecognized addresses are silently ignored.
func (s *SlabAllocator) Deallocate(addr uint64) {
	idx := s.find(addr)
	if idx == bitmath.NotFound {
		return
	}
	s.registry.Free(uint32(idx))
}

// Clear zeroes the whole slab containing addr.
func (s *SlabAllocator) Clear(addr uint64) {
	idx := s.find(addr)
	if idx == bitmath.NotFound {
		return
	}
	vmem.Clear(s.slots[idx].base, s.slots[idx].size)
}

// AllocationSize returns the live slab size at addr, or 0 if unowned.
func (s *SlabAllocator) AllocationSize(addr uint64) uint64 {
	idx := s.find(addr)
	if idx == bitmath.NotFound {
		return 0
	}
	return s.slots[idx].size
}

// AllocationBase returns the base of the slab containing addr, or 0.
func (s *SlabAllocator) AllocationBase(addr uint64) uint64 {
	idx := s.find(addr)
	if idx == bitmath.NotFound {
		return 0
	}
	return s.slots[idx].base
}

// NextAllocation returns the base of the next live slab in slot order
// after the slab containing addr, or 0 once the registry is exhausted.
// Slot order is not address order. addr == 0 starts a fresh scan at slot 0
// rather than short-circuiting through find(0).
func (s *SlabAllocator) NextAllocation(addr uint64) uint64 {
	var start uint32
	if addr != 0 {
		idx := s.find(addr)
		if idx == bitmath.NotFound {
			return 0
		}
		start = uint32(idx) + 1
	}
	next := s.registry.IsSetIterator(start).NextSet()
	if next == bitmath.NotFound {
		return 0
	}
	return s.slots[next].base
}

// Stats adds one entry per currently occupied slab into
// counts[sizeToOrder(size)] and sizes[sizeToOrder(size)].
func (s *SlabAllocator) Stats(counts, sizes []uint64) {
	for i := range s.slots {
		if !s.registry.IsSet(uint32(i)) {
			continue
		}
		size := s.slots[i].size
		order := bitmath.SizeToOrder(size)
		counts[order]++
		sizes[order] += size
	}
}

// Close releases every non-empty slab back to the OS, including recycled
// ones the registry no longer marks occupied.
func (s *SlabAllocator) Close() {
	for i := range s.slots {
		if s.slots[i].base != 0 && s.slots[i].size != 0 {
			if err := vmem.Release(s.slots[i].base, s.slots[i].size); err != nil {
				s.log.Warn("slab release failed", "addr", s.slots[i].base, "err", err)
			}
			s.slots[i] = descriptor{}
		}
	}
}
