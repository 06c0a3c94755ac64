// Package protocol implements the session protocol spoken with the child.
//
// A Session drives the connection state machine:
//
//	Idle -> Connecting -> Connected -> Closing -> Closed
//
// with Errored reachable from any state before Closing. Connect performs the
// handshake (one "connect" message, exactly one read that must be
// "connected"). Afterwards a Controller owns the read side: it resolves
// pending requests from "<kind>_response" and "error" messages and passes
// every other message to the event sink.
//
// Example usage:
//
//	transport := subprocess.NewSupervisor(log, options)
//	session := protocol.NewSession(log, transport, options)
//	defer session.Close()
//
//	if err := session.Connect(ctx); err != nil {
//	    return err
//	}
//
//	resp, err := session.Request(ctx, "location", map[string]any{"query": "Tokyo Tower"})
package protocol
