// Package tools exposes a sidecar session to Model Context Protocol hosts.
//
// A Server registers the "request" and "lookup_location" tools, each of
// which forwards to the session and renders the reply as JSON text. Request
// failures become MCP error results so the host model can read them; only
// transport problems surface as Go errors.
//
// The registry can be used directly through ListTools and CallTool, or served
// to an MCP host with Serve over any go-sdk transport (stdio in the CLI).
package tools
