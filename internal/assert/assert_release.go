//go:build !debug

// Package assert holds allocator preconditions that are UB-on-violation in
// release builds and diagnosed by a panic when built with -tags debug,
// per the documented double-free policy.
package assert

// NotDoubleFree is a no-op in release builds: freeing an already-free bit
// is undefined behavior, not a checked error.
func NotDoubleFree(bool, uint64) {}
