//go:build !unix

package vmem

import "quantumalloc/internal/allocerr"

// PageSize falls back to a conservative default on platforms without a
// virtual-memory facade implementation.
var PageSize = 4096

func Reserve(size uint64) (uint64, error) { return 0, allocerr.ErrUnsupportedPlatform }
func ReserveHint(size, hint uint64) (uint64, error) { return 0, allocerr.ErrUnsupportedPlatform }
func ReserveAligned(size, align uint64) (uint64, error) { return 0, allocerr.ErrUnsupportedPlatform }
func Commit(addr, size uint64) error { return allocerr.ErrUnsupportedPlatform }
func Uncommit(addr, size uint64) error { return allocerr.ErrUnsupportedPlatform }
func Release(addr, size uint64) error { return allocerr.ErrUnsupportedPlatform }
