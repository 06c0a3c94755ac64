// Package client implements the Client that owns one sidecar session.
//
// The Client ties the pieces together: it builds the subprocess transport
// (or uses an injected one), runs the handshake through a protocol.Session,
// and guarantees that Close terminates the child on every exit path. A
// Client is single-use; once closed, create a new one.
package client
