// Package allocerr holds the sentinel errors shared by every allocator
// component, so callers can use errors.Is regardless of which layer
// produced the failure.
package allocerr

import "errors"

var (
	ErrNoSpace               = errors.New("quantumalloc: no space")
	ErrBadArgument           = errors.New("quantumalloc: bad argument")
	ErrClosed                = errors.New("quantumalloc: closed")
	ErrCorrupt               = errors.New("quantumalloc: corrupt state")
	ErrReserveFailed         = errors.New("quantumalloc: virtual memory reservation failed")
	ErrCommitFailed          = errors.New("quantumalloc: virtual memory commit failed")
	ErrMisalignedAddress     = errors.New("quantumalloc: misaligned address")
	ErrInvalidPartitionCount = errors.New("quantumalloc: invalid partition count")
	ErrDoubleFree            = errors.New("quantumalloc: double free")
	ErrUnsupportedPlatform   = errors.New("quantumalloc: virtual memory facade unsupported on this platform")
)
