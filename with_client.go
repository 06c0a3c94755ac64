package sidecar

import (
	"context"
	"fmt"
)

// WithClient manages client lifecycle with automatic cleanup.
//
// This helper creates a client, connects it with the provided options, executes
// the callback function, and ensures the child is shut down via Close() when
// done, including when fn panics.
//
// The callback receives a connected Client that is ready for use.
// If the callback returns an error, it is returned to the caller.
// If Close() fails, a warning is logged but does not override the callback's error.
//
// Example usage:
//
//	err := sidecar.WithClient(ctx, func(c sidecar.Client) error {
//	    resp, err := c.Request(ctx, "location", map[string]any{"query": "Tokyo Tower"})
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(resp.Data)
//	    return nil
//	},
//	    sidecar.WithLogger(log),
//	    sidecar.WithCommand("node"),
//	)
func WithClient(ctx context.Context, fn func(Client) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	client := NewClient()
	if err := client.Connect(ctx, opts...); err != nil {
		_ = client.Close()

		return fmt.Errorf("failed to connect client: %w", err)
	}

	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn("failed to close client", "error", closeErr)
		}
	}()

	return fn(client)
}
