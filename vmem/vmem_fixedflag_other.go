//go:build unix && !linux

package vmem

// fixedFlag on non-Linux unix targets adds nothing: the address is passed
// as a plain hint, and ReserveHint's post-mmap address check rejects a
// mapping the kernel placed elsewhere because the hint was in use.
const fixedFlag = 0
