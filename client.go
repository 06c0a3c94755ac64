package sidecar

import (
	"context"
)

// Client provides a stateful session with one child process.
//
// Unlike the one-shot Request function, Client keeps the child running across
// requests and can deliver unsolicited events through RunLoop.
//
// Lifecycle: Clients are single-use. After Close(), create a new client with NewClient().
//
// Example usage:
//
//	client := sidecar.NewClient()
//	defer client.Close()
//
//	err := client.Connect(ctx,
//	    sidecar.WithLogger(slog.Default()),
//	    sidecar.WithCommand("node"),
//	    sidecar.WithArgs("maps-server.js"),
//	    sidecar.WithCredential("GOOGLE_MAPS_API_KEY"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Request(ctx, "location", map[string]any{"query": "Tokyo Tower"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Receive events until the child exits or ctx is cancelled
//	err = client.RunLoop(ctx, func(msg sidecar.Message) {
//	    // Process event...
//	})
type Client interface {
	// Connect launches the child and performs the handshake.
	// Must be called before any other methods.
	// Returns *SpawnError if the child cannot be started and *HandshakeError
	// if it does not answer "connected". The child is terminated before an
	// error is returned.
	Connect(ctx context.Context, opts ...Option) error

	// Request sends a <kind>_request carrying payload and waits for the
	// matching <kind>_response.
	// Returns *RequestError if the child answers with an error record; the
	// session remains usable. Returns *ChildExitedError if the child exits
	// while the request is pending.
	Request(ctx context.Context, kind string, payload map[string]any) (*Response, error)

	// RunLoop delivers unsolicited messages to handler until the child exits,
	// the client is closed, or ctx is cancelled.
	// Returns nil when the session ended normally and ctx.Err() on cancellation.
	RunLoop(ctx context.Context, handler EventHandler) error

	// State returns the current session state.
	State() State

	// ServerInfo returns the child's "connected" reply.
	// Returns nil if not connected.
	ServerInfo() Message

	// Close sends a best-effort disconnect, terminates the child and waits for it.
	// After Close(), the client cannot be reused. Safe to call multiple times.
	Close() error
}

// NewClient creates a new client.
//
// Call Connect() with options to begin a session:
//
//	client := sidecar.NewClient()
//	err := client.Connect(ctx,
//	    sidecar.WithCommand("npx"),
//	    sidecar.WithArgs("-y", "@modelcontextprotocol/server-google-maps"),
//	)
func NewClient() Client {
	return newClientImpl()
}
