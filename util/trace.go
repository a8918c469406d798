package util

import (
	"context"
	"log/slog"
	"time"
)

// Trace 记录一段操作的耗时，用法：defer util.Trace(ctx, "remove background")()
func Trace(ctx context.Context, msg string) func() {
	start := time.Now()
	return func() {
		slog.DebugContext(ctx, msg, "elapsed", time.Since(start))
	}
}
