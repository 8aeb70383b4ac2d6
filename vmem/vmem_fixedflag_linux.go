//go:build linux

package vmem

import "golang.org/x/sys/unix"

// fixedFlag makes ReserveHint fail rather than silently unmap an existing
// mapping when the hint address is already in use.
const fixedFlag = unix.MAP_FIXED_NOREPLACE
