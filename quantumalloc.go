// Package quantumalloc is a malloc-replacement allocator serving 8-byte to
// multi-terabyte requests from one reserved virtual-address region, backed
// only by OS virtual-memory reserve/commit primitives and tracked with
// lock-free atomic bitmap registries.
//
// Requests up to 64 MiB are served by one of three quantum allocators,
// each responsible for eight adjacent size orders; requests above 64 MiB
// are served by a slab allocator reserving directly from the OS. A
// roster of 65 atomic entries, one per size order, dispatches every
// allocate call in a single lookup.
package quantumalloc

import (
	"fmt"
	"log/slog"

	"quantumalloc/bitmath"
	"quantumalloc/internal/allocerr"
	"quantumalloc/internal/alloclog"
	"quantumalloc/quantum"
	"quantumalloc/roster"
	"quantumalloc/slab"
	"quantumalloc/vmem"
)

// largestSize is 2^LargestSizeOrder, the 64 MiB boundary between the
// quantum tiers and the slab tier, and the alignment granularity used
// when the caller does not request a specific base address.
const largestSize = uint64(1) << bitmath.LargestSizeOrder

// Config selects the reservation address, concurrency and security modes,
// and the per-tier partition counts for a new Allocator.
type Config struct {
	// Address, when non-zero, pins the root reservation to this address.
	// It must be aligned to largestSize (64 MiB).
	Address uint64
	// Shared selects the lock-free atomic Registry variant for every
	// sub-allocator; Confined (the default) assumes single-threaded use.
	Shared bool
	// Secure zero-fills quanta on deallocate and on slab recycle.
	Secure bool
	// SmallPartitionCount, MediumPartitionCount and LargePartitionCount
	// size the three quantum allocators, covering orders 3-10, 11-18 and
	// 19-26 respectively. Zero routes that order range to a null
	// allocator instead of reserving any address space for it.
	SmallPartitionCount, MediumPartitionCount, LargePartitionCount uint32
	// MaxSlabs bounds the number of concurrently live slab-tier
	// allocations (orders 27-44).
	MaxSlabs uint32
	// Logger receives construction events at Debug level and commit or
	// release failures at Warn level. Nil uses a package default.
	Logger *slog.Logger
}

// Allocator is the single owner of one reserved virtual-address region,
// three quantum allocators and one slab allocator, wired through a shared
// roster.
type Allocator struct {
	base        uint64
	reservation uint64
	roster      *roster.Roster
	quantums    [bitmath.MaxQuantumAllocators]*quantum.QuantumAllocator
	slab        *slab.SlabAllocator
	chain       [bitmath.MaxQuantumAllocators + 1]nextAllocator
	log         *slog.Logger
}

type nextAllocator interface {
	NextAllocation(addr uint64) uint64
}

// New reserves the root address range and builds the three quantum tiers
// plus the slab tier, wiring every size order into the roster. Returns an
// error if the address is misaligned or the OS refuses the reservation;
// there is no partial construction.
func New(cfg Config) (*Allocator, error) {
	if cfg.Address != 0 && cfg.Address&(largestSize-1) != 0 {
		return nil, fmt.Errorf("%w: address %#x not aligned to %#x", allocerr.ErrMisalignedAddress, cfg.Address, largestSize)
	}
	log := alloclog.Or(cfg.Logger)

	partitionCounts := [bitmath.MaxQuantumAllocators]uint32{
		cfg.SmallPartitionCount, cfg.MediumPartitionCount, cfg.LargePartitionCount,
	}
	var offsets [bitmath.MaxQuantumAllocators]uint64
	var reservation uint64
	for i := 0; i < bitmath.MaxQuantumAllocators; i++ {
		offsets[i] = reservation
		reservation += uint64(partitionCounts[i]) * partitionSize(tierSmallestOrder(i))
	}

	base, err := reserveRoot(cfg.Address, reservation)
	if err != nil {
		return nil, err
	}
	if base == 0 {
		return nil, fmt.Errorf("%w: reserve %d bytes", allocerr.ErrReserveFailed, reservation)
	}

	rst := roster.New()
	a := &Allocator{base: base, reservation: reservation, roster: rst, log: log}

	for i := 0; i < bitmath.MaxQuantumAllocators; i++ {
		smallest := tierSmallestOrder(i)
		a.quantums[i] = quantum.New(quantum.Config{
			Roster:             rst,
			IsShared:           cfg.Shared,
			IsSecure:           cfg.Secure,
			Base:               base + offsets[i],
			SmallestOrder:      smallest,
			LargestOrder:       smallest + bitmath.MaxQuantumAllocatorOrders - 1,
			PartitionSizeOrder: smallest + partitionSizeExtraOrder,
			PartitionCount:     partitionCounts[i],
			Log:                log,
		})
		a.chain[i] = a.quantums[i]
	}
	a.slab = slab.New(slab.Config{IsShared: cfg.Shared, IsSecure: cfg.Secure, MaxSlabs: cfg.MaxSlabs, Log: log})
	a.chain[bitmath.MaxQuantumAllocators] = a.slab

	populateRoster(rst, a.quantums, a.slab)

	log.Debug("allocator online", "base", fmt.Sprintf("%#x", base), "reservation", reservation)
	return a, nil
}

// partitionSizeExtraOrder is log2(MaxPartitionQuantum): a quantum
// allocator's partition size is MaxPartitionQuantum << smallestOrder.
const partitionSizeExtraOrder = 14

func tierSmallestOrder(tier int) uint8 {
	return bitmath.SmallestSizeOrder + uint8(tier)*bitmath.MaxQuantumAllocatorOrders
}

func partitionSize(smallestOrder uint8) uint64 {
	return bitmath.MaxPartitionQuantum << smallestOrder
}

func reserveRoot(address, reservation uint64) (uint64, error) {
	if address != 0 {
		return vmem.ReserveHint(reservation, address)
	}
	return vmem.ReserveAligned(reservation, largestSize)
}

func populateRoster(rst *roster.Roster, quantums [bitmath.MaxQuantumAllocators]*quantum.QuantumAllocator, sb *slab.SlabAllocator) {
	for order := uint8(0); order <= bitmath.SmallestSizeOrder; order++ {
		setTier(rst, quantums[0], order)
	}
	for _, q := range quantums {
		for order := q.SmallestOrder(); order <= q.LargestOrder(); order++ {
			setTier(rst, q, order)
		}
	}
	for order := uint16(bitmath.LargestSizeOrder) + 1; order <= uint16(bitmath.MaxAllocationOrder); order++ {
		rst.SetAllocator(uint8(order), sb)
	}
	for order := uint16(bitmath.MaxAllocationOrder) + 1; order < roster.Size; order++ {
		rst.SetAllocator(uint8(order), roster.Null)
	}
}

func setTier(rst *roster.Roster, q *quantum.QuantumAllocator, order uint8) {
	if q.PartitionCount() == 0 {
		rst.SetAllocator(order, roster.Null)
		return
	}
	rst.SetAllocator(order, q)
}

// Allocate serves a request of at least size bytes, returning its address
// or 0 on exhaustion. The returned block is exactly 1<<sizeToOrder(size)
// bytes, never the raw requested size.
func (a *Allocator) Allocate(size uint64) uint64 {
	order := bitmath.SizeToOrder(size)
	return a.roster.GetAllocator(order).Allocate(order)
}

func (a *Allocator) tierFor(addr uint64) (*quantum.QuantumAllocator, bool) {
	for _, q := range a.quantums {
		if q.Contains(addr) {
			return q, true
		}
	}
	return nil, false
}

// Deallocate returns addr's block to its owning tier. Addresses outside
// every quantum tier's range that belong to no live slab are silently
// ignored; an address inside a quantum tier's range whose partition slot
// was never brought online panics.
func (a *Allocator) Deallocate(addr uint64) {
	if q, ok := a.tierFor(addr); ok {
		q.Deallocate(addr)
		return
	}
	a.slab.Deallocate(addr)
}

// Reallocate grows or replaces the block at old to hold newSize bytes. A
// shrink that stays within the same quantum is a no-op returning old
// unchanged; old == 0 behaves like Allocate(newSize).
func (a *Allocator) Reallocate(old, newSize uint64) uint64 {
	if old == 0 {
		return a.Allocate(newSize)
	}
	oldSize := a.AllocationSize(old)
	if oldSize < bitmath.RoundUpPowerOfTwo(newSize) || bitmath.SizeToOrder(newSize) < bitmath.SizeToOrder(oldSize) {
		addr := a.Allocate(newSize)
		if addr == 0 {
			return 0
		}
		vmem.Copy(addr, old, oldSize)
		a.Deallocate(old)
		return addr
	}
	return old
}

// Clear zeroes the block containing addr without freeing it.
func (a *Allocator) Clear(addr uint64) {
	if q, ok := a.tierFor(addr); ok {
		q.Clear(addr)
		return
	}
	a.slab.Clear(addr)
}

// AllocationSize returns the live block size at addr, or 0 if unowned.
func (a *Allocator) AllocationSize(addr uint64) uint64 {
	if q, ok := a.tierFor(addr); ok {
		return q.AllocationSize(addr)
	}
	return a.slab.AllocationSize(addr)
}

// AllocationBase returns the aligned base of the block containing addr, or 0.
func (a *Allocator) AllocationBase(addr uint64) uint64 {
	if q, ok := a.tierFor(addr); ok {
		return q.AllocationBase(addr)
	}
	return a.slab.AllocationBase(addr)
}

// NextAllocation walks every live allocation tier by tier, returning the
// next one after addr, or 0 at exhaustion. The three quantum tiers are
// walked in ascending address order, then the slab tier in slot order;
// slab addresses are not ordered relative to each other or to the quantum
// tiers. addr == 0 starts a fresh walk from the beginning.
func (a *Allocator) NextAllocation(addr uint64) uint64 {
	start := 0
	if addr != 0 {
		start = len(a.chain) - 1
		if q, ok := a.tierFor(addr); ok {
			for i, c := range a.chain {
				if c == nextAllocator(q) {
					start = i
					break
				}
			}
		}
	}
	cur := addr
	for i := start; i < len(a.chain); i++ {
		if next := a.chain[i].NextAllocation(cur); next != 0 {
			return next
		}
		cur = 0
	}
	return 0
}

// Stats fills counts[order] and sizes[order] with the live quantum/slab
// count and byte total for every order, then sets counts[0]/sizes[0] to
// the grand total across all orders.
func (a *Allocator) Stats(counts, sizes []uint64) {
	for i := range counts {
		counts[i] = 0
	}
	for i := range sizes {
		sizes[i] = 0
	}
	for _, q := range a.quantums {
		q.Stats(counts, sizes)
	}
	a.slab.Stats(counts, sizes)
	var totalCount, totalSize uint64
	for i := 1; i < len(counts); i++ {
		totalCount += counts[i]
	}
	for i := 1; i < len(sizes); i++ {
		totalSize += sizes[i]
	}
	counts[0] = totalCount
	sizes[0] = totalSize
}

// Close releases every slab, then the root reservation.
func (a *Allocator) Close() error {
	a.slab.Close()
	if err := vmem.Release(a.base, a.reservation); err != nil {
		return fmt.Errorf("%w: release root reservation: %v", allocerr.ErrClosed, err)
	}
	return nil
}
