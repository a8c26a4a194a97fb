package hostmcp

import (
	"context"

	"github.com/wagiedev/host-mcp-go/internal/bridge"
	"github.com/wagiedev/host-mcp-go/internal/protocol"
)

// ProgressFunc receives progress reports from a handler.
type ProgressFunc = protocol.ProgressFunc

// Checkpoint returns CancelledError once the request behind ctx has been
// cancelled, timed out on the caller side, or had its session closed.
// Long-running handlers call it between steps where stopping leaves the host
// consistent.
func Checkpoint(ctx context.Context) error {
	return bridge.Checkpoint(ctx)
}

// Progress reports progress for the request behind ctx. Session clients get a
// notifications/progress event; MCP clients get a progress notification when
// they supplied a progress token. It never blocks and is a no-op when nobody
// is listening.
func Progress(ctx context.Context, progress, total float64, message string) error {
	return protocol.Progress(ctx, progress, total, message)
}

// WithProgress returns a context whose handler progress reports go to fn.
// Use it with Server.Call.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return protocol.WithProgress(ctx, fn)
}
