package sidecar

import "github.com/wagiedev/sidecar-go/internal/errors"

// Re-export error types from internal package

// SpawnError indicates the child executable could not be found or started.
type SpawnError = errors.SpawnError

// TransportWriteError indicates a message could not be written to the child.
type TransportWriteError = errors.TransportWriteError

// TransportDecodeError indicates a line from the child was not a JSON object.
type TransportDecodeError = errors.TransportDecodeError

// HandshakeError indicates the child did not answer "connect" with "connected".
type HandshakeError = errors.HandshakeError

// RequestError indicates the child answered a request with an error record.
type RequestError = errors.RequestError

// ChildExitedError indicates the child closed its output while the session
// was in use.
type ChildExitedError = errors.ChildExitedError

// ProcessError indicates the child could not be stopped.
type ProcessError = errors.ProcessError

// SidecarError is the base interface for all sidecar errors.
type SidecarError = errors.SidecarError

// Re-export sentinel errors from internal package.
var (
	// ErrClientNotConnected indicates the client is not connected.
	ErrClientNotConnected = errors.ErrClientNotConnected

	// ErrClientAlreadyConnected indicates the client is already connected.
	ErrClientAlreadyConnected = errors.ErrClientAlreadyConnected

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.ErrClientClosed

	// ErrTransportNotConnected indicates the transport is not connected.
	ErrTransportNotConnected = errors.ErrTransportNotConnected

	// ErrSessionClosed indicates the session closed while a request was pending.
	ErrSessionClosed = errors.ErrSessionClosed

	// ErrInvalidState indicates an operation was not valid in the session's state.
	ErrInvalidState = errors.ErrInvalidState

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.ErrRequestTimeout

	// ErrEndOfStream indicates the child closed its output.
	ErrEndOfStream = errors.ErrEndOfStream
)
