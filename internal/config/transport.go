// Package config provides configuration types for the sidecar client.
package config

import (
	"context"

	"github.com/wagiedev/sidecar-go/internal/wire"
)

// ExitStatus describes whether the child process has exited.
type ExitStatus struct {
	// Exited is false while the process is still running or not yet reaped.
	Exited bool

	// Code is the exit code once Exited is true; -1 if killed by a signal.
	Code int
}

// Transport defines the interface for communicating with the child process.
// Implement this to provide custom transports for testing, mocking,
// or alternative carriers (e.g., a socket instead of a subprocess).
//
// The default implementation is subprocess.Supervisor which spawns the child.
// Custom transports can be injected via Options.Transport.
type Transport interface {
	// Start launches the child and prepares the streams.
	// This is called before any messages are sent or received.
	Start(ctx context.Context) error

	// ReadMessages returns channels for receiving messages and errors.
	// Messages and non-fatal decode errors are delivered in stream order.
	// Both channels are closed when the child's output ends.
	ReadMessages(ctx context.Context) (<-chan wire.Message, <-chan error)

	// SendMessage writes one framed message to the child.
	// This method must be safe for concurrent use.
	SendMessage(ctx context.Context, msg wire.Message) error

	// Close terminates the child and releases resources.
	// It's safe to call Close multiple times.
	Close() error

	// IsReady returns true if the transport is ready for communication.
	IsReady() bool

	// EndInput signals that no more input will be sent.
	EndInput() error

	// ExitStatus reports, without blocking, whether the child has exited.
	ExitStatus() ExitStatus
}
