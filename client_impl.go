package sidecar

import (
	"context"

	"github.com/wagiedev/sidecar-go/internal/client"
	"github.com/wagiedev/sidecar-go/internal/config"
)

// clientWrapper wraps the internal client to adapt it to the public interface.
type clientWrapper struct {
	impl *client.Client
}

// Compile-time check that *clientWrapper implements the Client interface.
var _ Client = (*clientWrapper)(nil)

// newClientImpl creates the internal client implementation.
func newClientImpl() Client {
	return &clientWrapper{impl: client.New()}
}

// Connect launches the child and performs the handshake.
func (c *clientWrapper) Connect(ctx context.Context, opts ...Option) error {
	return c.impl.Start(ctx, applyOptionsToConfig(opts))
}

// Request sends a request and waits for its response.
func (c *clientWrapper) Request(ctx context.Context, kind string, payload map[string]any) (*Response, error) {
	return c.impl.Request(ctx, kind, payload)
}

// RunLoop delivers unsolicited messages to handler.
func (c *clientWrapper) RunLoop(ctx context.Context, handler EventHandler) error {
	return c.impl.RunLoop(ctx, handler)
}

// State returns the current session state.
func (c *clientWrapper) State() State {
	return c.impl.State()
}

// ServerInfo returns the child's "connected" reply.
func (c *clientWrapper) ServerInfo() Message {
	return c.impl.ServerInfo()
}

// Close terminates the session and cleans up resources.
func (c *clientWrapper) Close() error {
	return c.impl.Close()
}

// applyOptionsToConfig converts public options to internal config.Options.
func applyOptionsToConfig(opts []Option) *config.Options {
	// Options is a type alias to config.Options, so no conversion is needed.
	return applyOptions(opts)
}
