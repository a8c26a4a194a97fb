package hostmcp

import "log/slog"

// NopLogger returns a logger that discards all output.
// Servers created without WithLogger use it.
func NopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
