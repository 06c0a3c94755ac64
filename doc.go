// Package sidecar drives a long-running child process that speaks
// newline-delimited JSON over its standard streams.
//
// The child is typically a tool server such as a Google Maps MCP bridge
// launched with npx or node. The package spawns it, performs a
// connect/connected handshake, issues typed requests, dispatches unsolicited
// events, and guarantees the child is terminated on every exit path.
//
// # Basic Usage
//
// For a single request, use the Request function:
//
//	ctx := context.Background()
//	resp, err := sidecar.Request(ctx, "location", map[string]any{"query": "Tokyo Tower"},
//	    sidecar.WithCommand("npx"),
//	    sidecar.WithArgs("-y", "@modelcontextprotocol/server-google-maps"),
//	    sidecar.WithCredential("GOOGLE_MAPS_API_KEY"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println(resp.Data) // map[lat:35.6586 lng:139.7454]
//
// # Sessions
//
// For several requests over one child, use NewClient or the WithClient helper:
//
//	err := sidecar.WithClient(ctx, func(c sidecar.Client) error {
//	    loc, err := sidecar.LookupLocation(ctx, c, "Tokyo Tower")
//	    if err != nil {
//	        return err
//	    }
//
//	    fmt.Println(loc)
//
//	    // Deliver location updates until the child exits.
//	    return c.RunLoop(ctx, func(msg sidecar.Message) {
//	        fmt.Println(msg.Type())
//	    })
//	},
//	    sidecar.WithCommand("node"),
//	    sidecar.WithArgs("maps-server.js"),
//	)
//
// # Lifecycle
//
// A session moves through Idle, Connecting, Connected, Closing and Closed.
// Errored is entered when the handshake or transport fails; the child is
// shut down in every case. Clients are single-use: after Close, create a new
// one with NewClient.
//
// # Correlation
//
// By default requests are serialized and responses are matched in send order.
// WithCorrelation(CorrelationID) attaches an "id" to every request so several
// may be in flight at once; the child must echo it in its reply.
//
// # Error Handling
//
// Failures are typed; use errors.Is and errors.As to branch on them:
//
//	resp, err := client.Request(ctx, "location", payload)
//	if err != nil {
//	    var reqErr *sidecar.RequestError
//	    if errors.As(err, &reqErr) {
//	        // The child answered with an error; the session is still usable.
//	    }
//
//	    var exitErr *sidecar.ChildExitedError
//	    if errors.As(err, &exitErr) {
//	        fmt.Println(exitErr.Stderr)
//	    }
//	}
package sidecar
