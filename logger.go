package sidecar

import "log/slog"

// NopLogger returns a logger that discards everything. It is the default when
// no logger is configured.
func NopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
