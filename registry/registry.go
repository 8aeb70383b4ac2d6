// Package registry implements the lock-free bitmap used by every occupancy
// tracker in the allocator: a bitmap of N bits packed into ceil(N/64)
// 64-bit words plus a monotone "lowest" hint pointing at or below the
// lowest word that still contains a free (zero) bit.
package registry

import (
	"math/bits"
	"sync/atomic"

	"quantumalloc/bitmath"
)

// Registry is parametric in its atomic strategy: Confined registries are
// touched by exactly one goroutine and never retry; Shared registries are
// touched concurrently and use compare-and-swap loops. Both use the same
// atomic-word storage so find/free/isEmpty are written once.
type Registry struct {
	shared  bool
	words   []atomic.Uint64
	lowest  atomic.Uint32
	maximum uint32
}

func newRegistry(maximum uint32, shared bool) *Registry {
	n := (maximum + bitmath.BitsPerWord - 1) / bitmath.BitsPerWord
	return &Registry{shared: shared, words: make([]atomic.Uint64, n), maximum: maximum}
}

// NewConfined builds a registry for single-threaded access.
func NewConfined(maximum uint32) *Registry { return newRegistry(maximum, false) }

// NewShared builds a registry safe for concurrent, lock-free access.
func NewShared(maximum uint32) *Registry { return newRegistry(maximum, true) }

// Shared reports whether this registry uses the CAS-retry strategy.
func (r *Registry) Shared() bool { return r.shared }

// FindFree claims and returns the lowest-hinted free bit, or
// bitmath.NotFound if every bit up to Maximum is set. Phantom bits in the
// tail word beyond Maximum are ignored.
func (r *Registry) FindFree() int {
	numWords := uint32(len(r.words))
	for {
		wordIndex := r.lowest.Load()
		if wordIndex >= numWords {
			return bitmath.NotFound
		}
		word := r.words[wordIndex].Load()
		if word == ^uint64(0) {
			if r.shared {
				r.lowest.CompareAndSwap(wordIndex, wordIndex+1)
			} else {
				r.lowest.Store(wordIndex + 1)
			}
			continue
		}
		bitIndex := bits.TrailingZeros64(^word)
		index := wordIndex*bitmath.BitsPerWord + uint32(bitIndex)
		if index >= r.maximum {
			return bitmath.NotFound
		}
		mask := uint64(1) << bitIndex
		if r.shared {
			if !r.words[wordIndex].CompareAndSwap(word, word|mask) {
				continue
			}
		} else {
			r.words[wordIndex].Store(word | mask)
		}
		return int(index)
	}
}

// Free clears bit idx and lowers the lowest hint if idx's word is smaller.
func (r *Registry) Free(idx uint32) {
	wordIndex := idx / bitmath.BitsPerWord
	mask := uint64(1) << (idx % bitmath.BitsPerWord)
	if r.shared {
		for {
			old := r.words[wordIndex].Load()
			if old&mask == 0 {
				return
			}
			if r.words[wordIndex].CompareAndSwap(old, old&^mask) {
				break
			}
		}
		for {
			lo := r.lowest.Load()
			if wordIndex >= lo {
				return
			}
			if r.lowest.CompareAndSwap(lo, wordIndex) {
				return
			}
		}
	}
	old := r.words[wordIndex].Load()
	r.words[wordIndex].Store(old &^ mask)
	if wordIndex < r.lowest.Load() {
		r.lowest.Store(wordIndex)
	}
}

// IsSet peeks at bit idx. Not linearizable with concurrent mutators; safe
// only when the caller owns the bit (e.g. it holds the allocation at idx).
func (r *Registry) IsSet(idx uint32) bool {
	wordIndex := idx / bitmath.BitsPerWord
	mask := uint64(1) << (idx % bitmath.BitsPerWord)
	return r.words[wordIndex].Load()&mask != 0
}

// Set unconditionally sets bit idx, returning whether it changed.
func (r *Registry) Set(idx uint32) bool {
	wordIndex := idx / bitmath.BitsPerWord
	mask := uint64(1) << (idx % bitmath.BitsPerWord)
	if r.shared {
		for {
			old := r.words[wordIndex].Load()
			if old&mask != 0 {
				return false
			}
			if r.words[wordIndex].CompareAndSwap(old, old|mask) {
				return true
			}
		}
	}
	old := r.words[wordIndex].Load()
	if old&mask != 0 {
		return false
	}
	r.words[wordIndex].Store(old | mask)
	return true
}

// Clear unconditionally clears bit idx, returning whether it changed.
func (r *Registry) Clear(idx uint32) bool {
	wordIndex := idx / bitmath.BitsPerWord
	mask := uint64(1) << (idx % bitmath.BitsPerWord)
	if r.shared {
		for {
			old := r.words[wordIndex].Load()
			if old&mask == 0 {
				return false
			}
			if r.words[wordIndex].CompareAndSwap(old, old&^mask) {
				break
			}
		}
		for {
			lo := r.lowest.Load()
			if wordIndex >= lo {
				return true
			}
			if r.lowest.CompareAndSwap(lo, wordIndex) {
				return true
			}
		}
	}
	old := r.words[wordIndex].Load()
	if old&mask == 0 {
		return false
	}
	r.words[wordIndex].Store(old &^ mask)
	if wordIndex < r.lowest.Load() {
		r.lowest.Store(wordIndex)
	}
	return true
}

// IsEmpty is a cheap "probably empty" check: if the lowest hint says the
// registry might be empty, scan every word to confirm; otherwise trust
// that a set bit exists somewhere at or below the hint. Callers that need
// a definite answer combine this with an offline-then-recheck protocol
// (see quantum.QuantumAllocator.FreeUpPartition).
func (r *Registry) IsEmpty() bool {
	if r.lowest.Load() != 0 {
		return false
	}
	for i := range r.words {
		if r.words[i].Load() != 0 {
			return false
		}
	}
	return true
}

// Count samples the population count across all words. Not linearizable
// with concurrent mutators.
func (r *Registry) Count() uint32 {
	var c uint32
	for i := range r.words {
		c += uint32(bits.OnesCount64(r.words[i].Load()))
	}
	return c
}

// SetIterator produces a finite, non-restartable ascending sequence of set
// bit indices >= the starting point it was built with. It is a plain value
// carrying a registry reference and its last visited position — not an
// inner class, not shared across threads.
type SetIterator struct {
	r         *Registry
	wordIndex uint32
	mask      uint64
}

// IsSetIterator starts an iterator over set bits >= start.
func (r *Registry) IsSetIterator(start uint32) *SetIterator {
	it := &SetIterator{r: r, wordIndex: start / bitmath.BitsPerWord}
	if it.wordIndex < uint32(len(r.words)) {
		w := r.words[it.wordIndex].Load()
		offset := start % bitmath.BitsPerWord
		it.mask = w &^ (uint64(1)<<offset - 1)
	}
	return it
}

// NextSet returns the next set bit index, ascending, or bitmath.NotFound
// once the registry is exhausted.
func (it *SetIterator) NextSet() int {
	r := it.r
	for {
		for it.mask != 0 {
			bit := bits.TrailingZeros64(it.mask)
			idx := it.wordIndex*bitmath.BitsPerWord + uint32(bit)
			it.mask &^= uint64(1) << bit
			if idx >= r.maximum {
				it.mask = 0
				return bitmath.NotFound
			}
			return int(idx)
		}
		it.wordIndex++
		if it.wordIndex >= uint32(len(r.words)) {
			return bitmath.NotFound
		}
		it.mask = r.words[it.wordIndex].Load()
	}
}
