//go:build debug

package assert

import (
	"fmt"

	"quantumalloc/internal/allocerr"
)

// NotDoubleFree panics if isSet is false, meaning the caller is about to
// free a bit that is already free.
func NotDoubleFree(isSet bool, addr uint64) {
	if !isSet {
		panic(fmt.Errorf("%w: address %#x", allocerr.ErrDoubleFree, addr))
	}
}
