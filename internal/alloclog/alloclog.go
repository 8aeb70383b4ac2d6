// Package alloclog centralizes the structured logger used for allocator
// lifecycle events: construction at Debug level, and partition commit or
// slab release failures at Warn level. Nothing else on the
// Allocate/Deallocate path logs.
package alloclog

import (
	"log/slog"
	"os"
)

var def = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// Or returns l if non-nil, otherwise the default logger.
func Or(l *slog.Logger) *slog.Logger {
	if l == nil {
		return def
	}
	return l
}
