// Package partition implements a single quantum-size carving of one
// partition: a fixed-size, fixed-alignment range subdivided into equal
// quantum-sized slots, tracked by one registry.
package partition

import (
	"fmt"

	"quantumalloc/bitmath"
	"quantumalloc/internal/assert"
	"quantumalloc/registry"
	"quantumalloc/space"
	"quantumalloc/vmem"
)

// Owner is the narrow interface a Partition needs from the quantum
// allocator that holds it: forward progress when the partition itself is
// full. Kept separate from the concrete QuantumAllocator type so Partition
// never depends on its owner's full API.
type Owner interface {
	AllocateNonRecursive(p *Partition, order uint8) uint64
}

// Partition owns one registry sized partitionSize/quantumSize; every bit
// represents one quantum within the partition.
type Partition struct {
	owner    Owner
	idx      uint32
	isSecure bool
	space    space.Space
	order    uint8
	registry *registry.Registry
}

// New builds a Partition of partitionSize bytes at base, serving quantums
// of size 2^order. partitionSize must be a power of two. idx is this
// partition's slot index within its owning quantum allocator.
func New(owner Owner, idx uint32, isShared, isSecure bool, base, partitionSize uint64, order uint8) *Partition {
	slots := uint32(partitionSize >> order)
	var reg *registry.Registry
	if isShared {
		reg = registry.NewShared(slots)
	} else {
		reg = registry.NewConfined(slots)
	}
	return &Partition{
		owner:    owner,
		idx:      idx,
		isSecure: isSecure,
		space:    space.New(base, partitionSize),
		order:    order,
		registry: reg,
	}
}

// Order returns the quantum size order this partition currently serves.
func (p *Partition) Order() uint8 { return p.order }

// Index returns this partition's slot index within its owning quantum
// allocator.
func (p *Partition) Index() uint32 { return p.idx }

// Base returns the partition's base address.
func (p *Partition) Base() uint64 { return p.space.Base() }

// Allocate serves one quantum of the given order, which must equal the
// partition's configured order. Falls back to the owner's non-recursive
// scan when this partition's registry is full.
func (p *Partition) Allocate(order uint8) uint64 {
	if order != p.order {
		panic(fmt.Sprintf("partition: order %d does not match partition order %d", order, p.order))
	}
	if addr := p.TryAllocate(); addr != 0 {
		return addr
	}
	return p.owner.AllocateNonRecursive(p, order)
}

// TryAllocate serves one quantum from this partition's own registry only,
// returning 0 if it is full. It never touches the owner, so the quantum
// allocator's fallback scan can call it on every online partition without
// risking recursion back into Allocate.
func (p *Partition) TryAllocate() uint64 {
	idx := p.registry.FindFree()
	if idx == bitmath.NotFound {
		return 0
	}
	return p.space.Base() + (uint64(idx) << p.order)
}

// Deallocate returns the quantum containing addr to the free pool.
func (p *Partition) Deallocate(addr uint64) {
	if !p.space.Contains(addr) {
		panic(fmt.Sprintf("partition: address %#x outside [%#x,%#x)", addr, p.space.Base(), p.space.Limit()))
	}
	idx := uint32((addr - p.space.Base()) >> p.order)
	assert.NotDoubleFree(p.registry.IsSet(idx), addr)
	if p.isSecure {
		vmem.Clear(p.AllocationBase(addr), bitmath.OrderToSize(p.order))
	}
	p.registry.Free(idx)
}

// Clear zeroes the quantum containing addr without freeing it.
func (p *Partition) Clear(addr uint64) {
	vmem.Clear(p.AllocationBase(addr), bitmath.OrderToSize(p.order))
}

// AllocationSize returns the quantum size for any address in this partition.
func (p *Partition) AllocationSize(uint64) uint64 {
	return bitmath.OrderToSize(p.order)
}

// AllocationBase returns the quantum-aligned base of the block containing addr.
func (p *Partition) AllocationBase(addr uint64) uint64 {
	quantumSize := bitmath.OrderToSize(p.order)
	return addr &^ (quantumSize - 1)
}

// NextAllocation returns the next live allocation's address strictly after
// addr in ascending order, or 0 at exhaustion. addr == 0 starts the walk
// at the partition's first quantum.
func (p *Partition) NextAllocation(addr uint64) uint64 {
	var start uint32
	if addr != 0 {
		start = uint32((addr-p.space.Base())>>p.order) + 1
	}
	next := p.registry.IsSetIterator(start).NextSet()
	if next == bitmath.NotFound {
		return 0
	}
	return p.space.Base() + (uint64(next) << p.order)
}

// Stats adds this partition's live quantum count and byte total into
// counts[order] and sizes[order].
func (p *Partition) Stats(counts, sizes []uint64) {
	c := uint64(p.registry.Count())
	counts[p.order] += c
	sizes[p.order] += c << p.order
}

// IsEmpty reports whether this partition currently has no live quantums,
// per the registry's best-effort IsEmpty semantics.
func (p *Partition) IsEmpty() bool {
	return p.registry.IsEmpty()
}
