package sidecar

import (
	"context"
	"fmt"

	"github.com/wagiedev/sidecar-go/internal/protocol"
)

// Request executes a one-shot request: it launches the child, performs the
// handshake, sends one <kind>_request, and shuts the child down again.
//
// By default, logging is disabled. Use WithLogger to enable logging:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	resp, err := sidecar.Request(ctx, "location", payload,
//	    sidecar.WithLogger(logger),
//	    sidecar.WithCommand("node"),
//	    sidecar.WithArgs("maps-server.js"),
//	)
//
// The child is terminated before Request returns, whatever the outcome.
// Use NewClient to issue several requests over one child.
func Request(ctx context.Context, kind string, payload map[string]any, opts ...Option) (*Response, error) {
	var resp *Response

	err := WithClient(ctx, func(c Client) error {
		var err error

		resp, err = c.Request(ctx, kind, payload)

		return err
	}, opts...)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// LookupLocation sends a location request for query and decodes the reply.
//
//	loc, err := sidecar.LookupLocation(ctx, client, "Tokyo Tower")
//	// loc.Lat == 35.6586, loc.Lng == 139.7454
func LookupLocation(ctx context.Context, c Client, query string) (*Location, error) {
	loc, err := protocol.LookupLocation(ctx, c, query)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", query, err)
	}

	return loc, nil
}
