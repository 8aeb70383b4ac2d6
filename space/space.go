// Package space implements the immutable [base, limit) address range that
// every higher-level allocator is built from.
package space

// Space is an immutable half-open byte range [Base, Limit).
type Space struct {
	base  uint64
	limit uint64
}

// New builds a Space covering size bytes starting at base. Panics if
// limit would overflow or base > limit, both programmer errors.
func New(base, size uint64) Space {
	limit := base + size
	if limit < base {
		panic("space: size overflows address range")
	}
	return Space{base: base, limit: limit}
}

// Base returns the inclusive lower bound.
func (s Space) Base() uint64 { return s.base }

// Limit returns the exclusive upper bound.
func (s Space) Limit() uint64 { return s.limit }

// Size returns Limit - Base.
func (s Space) Size() uint64 { return s.limit - s.base }

// Contains reports whether addr lies in [Base, Limit).
func (s Space) Contains(addr uint64) bool {
	return addr >= s.base && addr < s.limit
}
