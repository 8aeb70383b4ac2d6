//go:build unix

package vmem

import (
	"fmt"

	"golang.org/x/sys/unix"

	"quantumalloc/internal/allocerr"
)

// PageSize is the OS page size, queried once at process start.
var PageSize = unix.Getpagesize()

const noFD = ^uintptr(0) // -1 as uintptr, anonymous mapping has no backing fd

func mmapRaw(addr, size uintptr, prot, flags int) (uintptr, error) {
	ret, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, size, uintptr(prot), uintptr(flags), noFD, 0)
	if errno != 0 {
		return 0, errno
	}
	return ret, nil
}

// Reserve asks the OS for size bytes of unbacked, inaccessible address
// space anywhere the kernel chooses. Returns 0 on failure.
func Reserve(size uint64) (uint64, error) {
	addr, err := mmapRaw(0, uintptr(size), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, fmt.Errorf("%w: reserve %d bytes: %v", allocerr.ErrReserveFailed, size, err)
	}
	return uint64(addr), nil
}

// ReserveHint asks for size bytes at the exact address hint. Returns 0 on
// collision with an existing mapping.
func ReserveHint(size, hint uint64) (uint64, error) {
	addr, err := mmapRaw(uintptr(hint), uintptr(size), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE|fixedFlag)
	if err != nil {
		return 0, nil // collision or platform refusal: caller treats as "0 on failure"
	}
	if uint64(addr) != hint {
		_ = Release(uint64(addr), size)
		return 0, nil
	}
	return uint64(addr), nil
}

// ReserveAligned reserves size bytes aligned to align (a power of two, at
// least the page size), by over-reserving and trimming the prefix/postfix.
func ReserveAligned(size, align uint64) (uint64, error) {
	if align <= uint64(PageSize) {
		return Reserve(size)
	}
	overSize := size + align - uint64(PageSize)
	base, err := Reserve(overSize)
	if err != nil || base == 0 {
		return 0, err
	}
	alignedBase := (base + (align - 1)) &^ (align - 1)
	if prefix := alignedBase - base; prefix > 0 {
		if err := Release(base, prefix); err != nil {
			_ = Release(base, overSize)
			return 0, err
		}
	}
	postfixStart := alignedBase + size
	regionEnd := base + overSize
	if regionEnd > postfixStart {
		if err := Release(postfixStart, regionEnd-postfixStart); err != nil {
			_ = Release(alignedBase, size)
			return 0, err
		}
	}
	return alignedBase, nil
}

// Commit makes pages readable/writable. Anonymous pages are zero-filled by
// the kernel on first touch, so no explicit zeroing is required here.
func Commit(addr, size uint64) error {
	if err := unix.Mprotect(bytesView(addr, size), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("%w: commit [%#x,%#x): %v", allocerr.ErrCommitFailed, addr, addr+size, err)
	}
	return nil
}

// Uncommit returns pages to the OS without releasing the address range:
// mark inaccessible and advise the kernel the content can be discarded.
func Uncommit(addr, size uint64) error {
	b := bytesView(addr, size)
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("uncommit advise [%#x,%#x): %w", addr, addr+size, err)
	}
	return unix.Mprotect(b, unix.PROT_NONE)
}

// Release returns the address range to the OS entirely.
func Release(addr, size uint64) error {
	if addr == 0 || size == 0 {
		return nil
	}
	// Raw munmap: unix.Munmap only accepts slices created by unix.Mmap,
	// and these mappings come from mmapRaw.
	if _, _, errno := unix.Syscall(unix.SYS_MUNMAP, uintptr(addr), uintptr(size), 0); errno != 0 {
		return errno
	}
	return nil
}
