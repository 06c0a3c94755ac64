package config

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/wagiedev/sidecar-go/internal/wire"
)

// Defaults applied by WithDefaults.
const (
	DefaultProtocol         = "google-maps-mcp"
	DefaultProtocolVersion  = "1.0"
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultTerminateTimeout = 5 * time.Second
)

// Correlation selects how responses are matched to requests.
type Correlation string

const (
	// CorrelationOrdered matches responses to requests strictly in send order.
	// Requests are serialized; the wire messages carry no id.
	CorrelationOrdered Correlation = "ordered"

	// CorrelationID tags every request with a unique "id" and resolves the
	// response carrying the same id. Requests may be in flight concurrently.
	CorrelationID Correlation = "id"
)

// Valid reports whether c is a known correlation mode.
func (c Correlation) Valid() bool {
	return c == CorrelationOrdered || c == CorrelationID
}

// EventHandler receives unsolicited messages from the child, one at a time and
// in arrival order. It runs on its own goroutine, not the read loop, so it may
// block or issue requests. It must not call Close.
type EventHandler func(msg wire.Message)

// Options configures the sidecar client.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Command is the child executable, either a path or a name looked up in PATH.
	Command string

	// Args are the child's command line arguments.
	Args []string

	// Env provides additional environment variables for the child process.
	Env map[string]string

	// CredentialVar names an environment variable (e.g. "GOOGLE_MAPS_API_KEY")
	// whose value is copied from this process into the child's environment.
	CredentialVar string

	// Cwd sets the working directory for the child process.
	Cwd string

	// Protocol is the protocol name sent in the connect handshake.
	Protocol string

	// ProtocolVersion is the version sent in the connect handshake.
	ProtocolVersion string

	// Stderr is called with each line the child writes to stderr.
	Stderr func(line string)

	// OnEvent receives unsolicited messages when no RunLoop handler is active.
	OnEvent EventHandler

	// HandshakeTimeout bounds the wait for the "connected" reply.
	HandshakeTimeout time.Duration

	// RequestTimeout bounds the wait for each response.
	RequestTimeout time.Duration

	// TerminateTimeout bounds the graceful shutdown of the child before it is killed.
	TerminateTimeout time.Duration

	// Correlation selects how responses are matched to requests.
	Correlation Correlation

	// Transport overrides the subprocess transport (testing, custom carriers).
	Transport Transport
}

// WithDefaults returns a copy of o with zero values replaced by defaults.
// A nil receiver yields the defaults.
func (o *Options) WithDefaults() *Options {
	out := &Options{}
	if o != nil {
		*out = *o
		out.Args = append([]string(nil), o.Args...)
		out.Env = maps.Clone(o.Env)
	}

	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if out.Protocol == "" {
		out.Protocol = DefaultProtocol
	}

	if out.ProtocolVersion == "" {
		out.ProtocolVersion = DefaultProtocolVersion
	}

	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if out.RequestTimeout <= 0 {
		out.RequestTimeout = DefaultRequestTimeout
	}

	if out.TerminateTimeout <= 0 {
		out.TerminateTimeout = DefaultTerminateTimeout
	}

	if out.Correlation == "" {
		out.Correlation = CorrelationOrdered
	}

	return out
}

// Validate checks that the options describe a launchable session.
func (o *Options) Validate() error {
	if o.Transport == nil && o.Command == "" {
		return fmt.Errorf("command is required")
	}

	if o.Correlation != "" && !o.Correlation.Valid() {
		return fmt.Errorf("unknown correlation mode %q", o.Correlation)
	}

	return nil
}
