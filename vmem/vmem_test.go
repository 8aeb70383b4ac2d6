package vmem

import (
	"testing"
	"unsafe"
)

func addrOf(b []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func TestClearZeroesBytes(t *testing.T) {
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = 0xAA
	}
	Clear(addrOf(buf), uint64(len(buf)))
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not cleared: %#x", i, b)
		}
	}
}

func TestCopyMovesBytes(t *testing.T) {
	src := make([]byte, 32)
	for i := range src {
		src[i] = byte(i)
	}
	dst := make([]byte, 32)
	Copy(addrOf(dst), addrOf(src), uint64(len(src)))
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("byte %d: got %d want %d", i, dst[i], src[i])
		}
	}
}

func TestClearZeroSizeIsNoop(t *testing.T) {
	Clear(0, 0)
	Copy(0, 0, 0)
}
