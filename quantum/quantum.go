// Package quantum implements the mid-tier allocator: a fixed set of
// equal-size partitions, each carved for one quantum order at a time,
// brought online and offline as demand shifts between orders.
package quantum

import (
	"fmt"

	"quantumalloc/bitmath"
	"quantumalloc/internal/alloclog"
	"quantumalloc/partition"
	"quantumalloc/registry"
	"quantumalloc/roster"
	"quantumalloc/space"
	"quantumalloc/vmem"

	"log/slog"
)

// QuantumAllocator manages partitionCount fixed-size partitions carved out
// of one contiguous virtual reservation, publishing each order's current
// handler into the shared roster.
type QuantumAllocator struct {
	isShared, isSecure          bool
	space                       space.Space
	base                        uint64
	partitionSizeOrder          uint8
	partitionSize               uint64
	partitionCount              uint32
	smallestOrder, largestOrder uint8
	slots                       []*partition.Partition
	partitionRegistry           *registry.Registry
	orderRegistry               []*registry.Registry
	roster                      *roster.Roster
	log                         *slog.Logger
}

// Config bundles the construction parameters for one quantum allocator tier.
type Config struct {
	Roster             *roster.Roster
	IsShared, IsSecure bool
	Base               uint64
	SmallestOrder      uint8
	LargestOrder       uint8
	PartitionSizeOrder uint8
	PartitionCount     uint32
	Log                *slog.Logger
}

// New builds a QuantumAllocator. It does not write to cfg.Roster: the
// caller installs it as the handler for [SmallestOrder, LargestOrder], and
// the allocator later publishes partitions there as it brings them online.
func New(cfg Config) *QuantumAllocator {
	if cfg.LargestOrder < cfg.SmallestOrder {
		panic("quantum: largest order below smallest order")
	}
	partitionSize := bitmath.OrderToSize(cfg.PartitionSizeOrder)
	q := &QuantumAllocator{
		isShared:           cfg.IsShared,
		isSecure:           cfg.IsSecure,
		space:              space.New(cfg.Base, uint64(cfg.PartitionCount)*partitionSize),
		base:               cfg.Base,
		partitionSizeOrder: cfg.PartitionSizeOrder,
		partitionSize:      partitionSize,
		partitionCount:     cfg.PartitionCount,
		smallestOrder:      cfg.SmallestOrder,
		largestOrder:       cfg.LargestOrder,
		slots:              make([]*partition.Partition, cfg.PartitionCount),
		roster:             cfg.Roster,
		log:                alloclog.Or(cfg.Log),
	}
	if cfg.IsShared {
		q.partitionRegistry = registry.NewShared(cfg.PartitionCount)
	} else {
		q.partitionRegistry = registry.NewConfined(cfg.PartitionCount)
	}
	numOrders := int(cfg.LargestOrder-cfg.SmallestOrder) + 1
	q.orderRegistry = make([]*registry.Registry, numOrders)
	for i := range q.orderRegistry {
		if cfg.IsShared {
			q.orderRegistry[i] = registry.NewShared(cfg.PartitionCount)
		} else {
			q.orderRegistry[i] = registry.NewConfined(cfg.PartitionCount)
		}
	}
	q.log.Debug("quantum allocator online",
		"base", fmt.Sprintf("%#x", cfg.Base),
		"partitionSize", partitionSize,
		"partitionCount", cfg.PartitionCount,
		"smallestOrder", cfg.SmallestOrder,
		"largestOrder", cfg.LargestOrder)
	return q
}

// Contains reports whether addr falls within this allocator's reservation.
func (q *QuantumAllocator) Contains(addr uint64) bool { return q.space.Contains(addr) }

// SmallestOrder returns the lowest quantum order this allocator serves.
func (q *QuantumAllocator) SmallestOrder() uint8 { return q.smallestOrder }

// LargestOrder returns the highest quantum order this allocator serves.
func (q *QuantumAllocator) LargestOrder() uint8 { return q.largestOrder }

// PartitionCount returns the number of partition slots this allocator was
// built with.
func (q *QuantumAllocator) PartitionCount() uint32 { return q.partitionCount }

func (q *QuantumAllocator) orderIndex(order uint8) uint8 { return order - q.smallestOrder }

func (q *QuantumAllocator) slotIndex(addr uint64) uint32 {
	return uint32((addr - q.base) >> q.partitionSizeOrder)
}

// AllocatePartition claims an unused partition slot and commits its
// backing memory, returning its index. Returns (0, false) when the
// virtual range is full or the commit fails.
func (q *QuantumAllocator) AllocatePartition() (uint32, bool) {
	idx := q.partitionRegistry.FindFree()
	if idx == bitmath.NotFound {
		return 0, false
	}
	addr := q.base + uint64(idx)*q.partitionSize
	if err := vmem.Commit(addr, q.partitionSize); err != nil {
		q.log.Warn("partition commit failed", "addr", fmt.Sprintf("%#x", addr), "err", err)
		q.partitionRegistry.Free(uint32(idx))
		return 0, false
	}
	return uint32(idx), true
}

// NewPartition builds and installs a Partition at slot idx for order.
func (q *QuantumAllocator) NewPartition(idx uint32, order uint8) *partition.Partition {
	addr := q.base + uint64(idx)*q.partitionSize
	p := partition.New(q, idx, q.isShared, q.isSecure, addr, q.partitionSize, order)
	q.slots[idx] = p
	return p
}

// AddToOrder brings partition p online for orderIndex and hands the roster
// slot for that order directly to p, so further hits skip this allocator.
func (q *QuantumAllocator) AddToOrder(orderIndex uint8, p *partition.Partition, idx uint32) {
	q.orderRegistry[orderIndex].Set(idx)
	q.roster.SetAllocator(q.smallestOrder+orderIndex, p)
}

// OfflinePartition takes partition idx off orderIndex's active set and
// restores the roster entry to this allocator, so misses fall back to the
// full scan instead of a partition that may no longer have room.
func (q *QuantumAllocator) OfflinePartition(idx uint32, orderIndex uint8) bool {
	changed := q.orderRegistry[orderIndex].Clear(idx)
	q.roster.SetAllocator(q.smallestOrder+orderIndex, q)
	return changed
}

// OnlinePartition undoes OfflinePartition without touching the roster.
func (q *QuantumAllocator) OnlinePartition(idx uint32, orderIndex uint8) {
	q.orderRegistry[orderIndex].Set(idx)
}

// FreeUpPartition scans committed slots from high to low looking for one
// that is speculatively empty, offlines it from its current order under
// the offline-then-recheck protocol, and if it is confirmed empty rebuilds
// it for orderIndex. Returns nil if no slot could be repurposed.
func (q *QuantumAllocator) FreeUpPartition(orderIndex uint8) *partition.Partition {
	for i := int(q.partitionCount) - 1; i >= 0; i-- {
		idx := uint32(i)
		if !q.partitionRegistry.IsSet(idx) {
			continue
		}
		p := q.slots[idx]
		if p == nil || !p.IsEmpty() {
			continue
		}
		curOrderIndex := q.orderIndex(p.Order())
		if !q.OfflinePartition(idx, curOrderIndex) {
			continue
		}
		if !p.IsEmpty() {
			q.OnlinePartition(idx, curOrderIndex)
			continue
		}
		order := q.smallestOrder + orderIndex
		rebuilt := q.NewPartition(idx, order)
		q.AddToOrder(orderIndex, rebuilt, idx)
		return rebuilt
	}
	return nil
}

// newOrderPartition brings a fresh slot online for orderIndex and serves
// the caller's allocation from it directly.
func (q *QuantumAllocator) newOrderPartition(orderIndex uint8) uint64 {
	idx, ok := q.AllocatePartition()
	if !ok {
		return 0
	}
	order := q.smallestOrder + orderIndex
	p := q.NewPartition(idx, order)
	q.AddToOrder(orderIndex, p, idx)
	return p.TryAllocate()
}

// coreScan tries every currently online partition for orderIndex via its
// raw registry only (never Partition.Allocate), so this never recurses.
func (q *QuantumAllocator) coreScan(orderIndex uint8) uint64 {
	it := q.orderRegistry[orderIndex].IsSetIterator(0)
	for {
		idx := it.NextSet()
		if idx == bitmath.NotFound {
			return 0
		}
		p := q.slots[idx]
		if p == nil {
			continue
		}
		if addr := p.TryAllocate(); addr != 0 {
			return addr
		}
	}
}

func (q *QuantumAllocator) coreAllocate(orderIndex uint8) uint64 {
	if addr := q.coreScan(orderIndex); addr != 0 {
		return addr
	}
	if addr := q.newOrderPartition(orderIndex); addr != 0 {
		return addr
	}
	if p := q.FreeUpPartition(orderIndex); p != nil {
		return p.TryAllocate()
	}
	return 0
}

// Allocate is the roster-visible entry point for this allocator: reached
// whenever no single partition has been published for the order yet.
func (q *QuantumAllocator) Allocate(order uint8) uint64 {
	return q.coreAllocate(q.orderIndex(order))
}

// AllocateNonRecursive is called by a Partition that just found itself
// full. It offlines that partition for the duration of the scan so it is
// never revisited, guaranteeing the scan touches every other online
// partition at most once before falling back to growth or reclamation.
func (q *QuantumAllocator) AllocateNonRecursive(full *partition.Partition, order uint8) uint64 {
	orderIndex := q.orderIndex(order)
	wasOnline := q.orderRegistry[orderIndex].Clear(full.Index())
	defer func() {
		if wasOnline {
			q.OnlinePartition(full.Index(), orderIndex)
		}
	}()
	return q.coreAllocate(orderIndex)
}

// Deallocate returns addr's quantum to its owning partition.
func (q *QuantumAllocator) Deallocate(addr uint64) {
	p := q.slots[q.slotIndex(addr)]
	if p == nil {
		panic(fmt.Sprintf("quantum: address %#x has no owning partition", addr))
	}
	p.Deallocate(addr)
}

// Clear zeroes addr's quantum without freeing it.
func (q *QuantumAllocator) Clear(addr uint64) {
	if p := q.slots[q.slotIndex(addr)]; p != nil {
		p.Clear(addr)
	}
}

// AllocationSize returns the quantum size backing addr, or 0 if unowned.
func (q *QuantumAllocator) AllocationSize(addr uint64) uint64 {
	idx := q.slotIndex(addr)
	if idx >= q.partitionCount || q.slots[idx] == nil {
		return 0
	}
	return q.slots[idx].AllocationSize(addr)
}

// AllocationBase returns the quantum-aligned base of the block containing addr.
func (q *QuantumAllocator) AllocationBase(addr uint64) uint64 {
	idx := q.slotIndex(addr)
	if idx >= q.partitionCount || q.slots[idx] == nil {
		return 0
	}
	return q.slots[idx].AllocationBase(addr)
}

// NextAllocation returns the next live allocation strictly after addr
// across all partitions, ascending by slot then by offset within a slot.
func (q *QuantumAllocator) NextAllocation(addr uint64) uint64 {
	var start uint32
	if addr != 0 {
		start = q.slotIndex(addr)
	}
	for i := start; i < q.partitionCount; i++ {
		if !q.partitionRegistry.IsSet(i) {
			continue
		}
		p := q.slots[i]
		if p == nil {
			continue
		}
		if next := p.NextAllocation(addr); next != 0 {
			return next
		}
		addr = 0
	}
	return 0
}

// Stats accumulates per-order live counts and byte totals across every
// committed partition into counts[order] and sizes[order].
func (q *QuantumAllocator) Stats(counts, sizes []uint64) {
	for i := uint32(0); i < q.partitionCount; i++ {
		if !q.partitionRegistry.IsSet(i) {
			continue
		}
		if p := q.slots[i]; p != nil {
			p.Stats(counts, sizes)
		}
	}
}
