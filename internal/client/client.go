package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wagiedev/sidecar-go/internal/config"
	"github.com/wagiedev/sidecar-go/internal/errors"
	"github.com/wagiedev/sidecar-go/internal/protocol"
	"github.com/wagiedev/sidecar-go/internal/subprocess"
	"github.com/wagiedev/sidecar-go/internal/wire"
)

// Client implements the sidecar client.
type Client struct {
	log       *slog.Logger
	options   *config.Options
	transport config.Transport
	session   *protocol.Session

	// Lifecycle management
	mu        sync.Mutex
	connected bool
	closed    bool      // Tracks if Close() has been called
	closeOnce sync.Once // Ensures Close() only runs once
}

// New creates a new client.
//
// The client is not connected after creation. Call Start() with options to connect.
func New() *Client {
	return &Client{}
}

// Start launches the child and performs the handshake.
//
// Returns *errors.SpawnError if the child cannot be launched and
// *errors.HandshakeError if it does not answer "connected". In both cases the
// child has already been shut down; Close is still safe to call.
//
// The client lock is not held during the handshake, so Close from another
// goroutine shuts the child down and makes Start return promptly.
func (c *Client) Start(ctx context.Context, options *config.Options) error {
	session, err := c.prepare(options)
	if err != nil {
		return err
	}

	c.log.Info("Starting session", "session_id", session.ID(), "command", c.options.Command)

	if err := session.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrClientClosed
	}

	c.connected = true
	c.log.Info("Client started successfully", "session_id", session.ID())

	return nil
}

// prepare validates options and creates the session under the client lock.
// Setting c.session claims the client, so a concurrent Start fails.
func (c *Client) prepare(options *config.Options) (*protocol.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.ErrClientClosed
	}

	if c.connected || c.session != nil {
		return nil, errors.ErrClientAlreadyConnected
	}

	if options == nil {
		options = &config.Options{}
	}

	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	options = options.WithDefaults()

	c.options = options
	c.log = options.Logger.With("component", "client")

	// Create or use injected transport
	if options.Transport != nil {
		c.transport = options.Transport

		c.log.Debug("Using injected custom transport")
	} else {
		c.transport = subprocess.NewSupervisor(options.Logger, options)
	}

	c.session = protocol.NewSession(options.Logger, c.transport, options)

	return c.session, nil
}

// activeSession returns the session if the client is connected.
func (c *Client) activeSession() (*protocol.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.ErrClientClosed
	}

	if !c.connected {
		return nil, errors.ErrClientNotConnected
	}

	return c.session, nil
}

// Request sends a <kind>_request and waits for its response.
func (c *Client) Request(ctx context.Context, kind string, payload map[string]any) (*protocol.Response, error) {
	session, err := c.activeSession()
	if err != nil {
		return nil, err
	}

	return session.Request(ctx, kind, payload)
}

// RunLoop delivers unsolicited messages to handler until the child exits,
// the client is closed, or ctx is cancelled.
func (c *Client) RunLoop(ctx context.Context, handler config.EventHandler) error {
	session, err := c.activeSession()
	if err != nil {
		return err
	}

	return session.RunLoop(ctx, handler)
}

// State returns the session state, or StateIdle before Start.
func (c *Client) State() protocol.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		if c.closed {
			return protocol.StateClosed
		}

		return protocol.StateIdle
	}

	return c.session.State()
}

// ServerInfo returns the child's handshake reply.
// Returns nil if not connected.
func (c *Client) ServerInfo() wire.Message {
	session, err := c.activeSession()
	if err != nil {
		return nil
	}

	return session.ServerInfo()
}

// SessionID returns the identifier of the current session, or "" before Start.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ""
	}

	return c.session.ID()
}

// Err returns the error that ended the session, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}

	return c.session.Err()
}

// Close terminates the session and cleans up resources. A handshake still in
// progress is aborted.
//
// After Close(), the client cannot be reused - create a new client with New().
// This method is safe to call multiple times.
func (c *Client) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.connected = false
		session := c.session
		c.mu.Unlock()

		if session == nil {
			return
		}

		c.log.Info("Closing client")

		closeErr = session.Close()

		c.log.Info("Client closed")
	})

	return closeErr
}
