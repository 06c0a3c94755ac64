package errors

import (
	"errors"
	"fmt"
)

// SidecarError is the base interface for all sidecar client errors.
type SidecarError interface {
	error
	IsSidecarError() bool
}

// Compile-time verification that all error types implement SidecarError.
var (
	_ SidecarError = (*SpawnError)(nil)
	_ SidecarError = (*TransportWriteError)(nil)
	_ SidecarError = (*TransportDecodeError)(nil)
	_ SidecarError = (*HandshakeError)(nil)
	_ SidecarError = (*RequestError)(nil)
	_ SidecarError = (*ChildExitedError)(nil)
	_ SidecarError = (*ProcessError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrClientNotConnected indicates the client is not connected.
	ErrClientNotConnected = errors.New("client not connected")

	// ErrClientAlreadyConnected indicates the client is already connected.
	ErrClientAlreadyConnected = errors.New("client already connected")

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.New("client closed: clients are single-use, create a new one with NewClient()")

	// ErrTransportNotConnected indicates the transport has not been started.
	ErrTransportNotConnected = errors.New("transport not connected")

	// ErrStdinClosed indicates the child's stdin was closed, usually after a
	// cancelled write or during shutdown.
	ErrStdinClosed = errors.New("stdin closed")

	// ErrSessionClosed indicates the session has shut down.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidState indicates an operation is not allowed in the current session state.
	ErrInvalidState = errors.New("invalid session state")

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrEndOfStream indicates the child closed its output stream.
	ErrEndOfStream = errors.New("end of stream")
)

// SpawnError indicates the child process could not be launched.
type SpawnError struct {
	Command       string
	SearchedPaths []string
	Err           error
}

func (e *SpawnError) Error() string {
	if len(e.SearchedPaths) > 0 {
		return fmt.Sprintf("spawn %q: not found in %v", e.Command, e.SearchedPaths)
	}

	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsSidecarError implements SidecarError.
func (e *SpawnError) IsSidecarError() bool { return true }

// TransportWriteError indicates a message could not be written to the child.
type TransportWriteError struct {
	Err error
}

func (e *TransportWriteError) Error() string {
	return fmt.Sprintf("write to child: %v", e.Err)
}

func (e *TransportWriteError) Unwrap() error {
	return e.Err
}

// IsSidecarError implements SidecarError.
func (e *TransportWriteError) IsSidecarError() bool { return true }

// TransportDecodeError indicates a line from the child was not a JSON object.
// The raw line is preserved for diagnostics.
type TransportDecodeError struct {
	RawData string
	Err     error
}

func (e *TransportDecodeError) Error() string {
	return fmt.Sprintf("decode line from child: %v", e.Err)
}

func (e *TransportDecodeError) Unwrap() error {
	return e.Err
}

// IsSidecarError implements SidecarError.
func (e *TransportDecodeError) IsSidecarError() bool { return true }

// HandshakeError indicates the connect/connected exchange failed.
//
// Got holds the discriminator of the unexpected reply, if one was received.
type HandshakeError struct {
	Reason string
	Got    string
	Err    error
}

func (e *HandshakeError) Error() string {
	msg := "handshake failed: " + e.Reason

	if e.Got != "" {
		msg += fmt.Sprintf(" (got %q)", e.Got)
	}

	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}

	return msg
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// IsSidecarError implements SidecarError.
func (e *HandshakeError) IsSidecarError() bool { return true }

// RequestError indicates the child answered a request with an error message.
// The session remains usable.
type RequestError struct {
	Kind    string
	Message string
	Data    map[string]any
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s request failed", e.Kind)
	}

	return fmt.Sprintf("%s request failed: %s", e.Kind, e.Message)
}

// IsSidecarError implements SidecarError.
func (e *RequestError) IsSidecarError() bool { return true }

// ChildExitedError indicates the child closed its output without the session
// being closed first.
type ChildExitedError struct {
	// ExitCode is -1 when the process had not been reaped yet.
	ExitCode int
	Stderr   string
}

func (e *ChildExitedError) Error() string {
	if e.ExitCode < 0 {
		return "child closed its output unexpectedly"
	}

	return fmt.Sprintf("child exited unexpectedly (exit %d)", e.ExitCode)
}

// Is reports ErrEndOfStream as a match so callers can treat both uniformly.
func (e *ChildExitedError) Is(target error) bool {
	return target == ErrEndOfStream
}

// IsSidecarError implements SidecarError.
func (e *ChildExitedError) IsSidecarError() bool { return true }

// ProcessError indicates the child process failed or could not be stopped.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("child process failed (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("child process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsSidecarError implements SidecarError.
func (e *ProcessError) IsSidecarError() bool { return true }
