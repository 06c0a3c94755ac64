package sidecar

import (
	"log/slog"
	"maps"
	"time"
)

// Option configures Options using the functional options pattern.
// This is the option type for clients and one-shot requests.
type Option func(*Options)

// applyOptions applies functional options to an Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Child Process =====

// WithCommand sets the executable to launch. A bare name is looked up in PATH;
// a name containing a path separator must exist.
func WithCommand(command string) Option {
	return func(o *Options) {
		o.Command = command
	}
}

// WithArgs sets the arguments passed to the command.
func WithArgs(args ...string) Option {
	return func(o *Options) {
		o.Args = append([]string(nil), args...)
	}
}

// WithEnv adds variables to the child's environment. The child otherwise
// inherits the parent environment. Repeated calls merge.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string, len(env))
		}

		maps.Copy(o.Env, env)
	}
}

// WithCredential copies the named variable (e.g. "GOOGLE_MAPS_API_KEY") from
// the parent environment into the child's environment.
func WithCredential(name string) Option {
	return func(o *Options) {
		o.CredentialVar = name
	}
}

// WithCwd sets the working directory for the child process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithStderr sets a callback invoked with each line the child writes to stderr.
func WithStderr(handler func(string)) Option {
	return func(o *Options) {
		o.Stderr = handler
	}
}

// WithTransport injects a custom transport instead of spawning a child.
// The transport must implement the Transport interface.
func WithTransport(transport Transport) Option {
	return func(o *Options) {
		o.Transport = transport
	}
}

// ===== Protocol =====

// WithProtocol sets the protocol name and version sent in the connect message.
// An empty version keeps the default.
func WithProtocol(name, version string) Option {
	return func(o *Options) {
		o.Protocol = name
		o.ProtocolVersion = version
	}
}

// WithCorrelation selects how responses are matched to requests.
func WithCorrelation(mode Correlation) Option {
	return func(o *Options) {
		o.Correlation = mode
	}
}

// WithEventHandler sets the handler for unsolicited messages received while
// no RunLoop is active.
func WithEventHandler(handler EventHandler) Option {
	return func(o *Options) {
		o.OnEvent = handler
	}
}

// ===== Timeouts =====

// WithHandshakeTimeout bounds the wait for the "connected" reply.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.HandshakeTimeout = d
	}
}

// WithRequestTimeout bounds the wait for each response.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.RequestTimeout = d
	}
}

// WithTerminateTimeout bounds how long Close waits for the child to exit
// before killing it.
func WithTerminateTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.TerminateTimeout = d
	}
}

// ===== Logging =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// ===== Configuration Files =====

// WithConfig overlays a loaded configuration file or environment onto the
// options. Options applied after it take precedence.
func WithConfig(file *ConfigFile) Option {
	return func(o *Options) {
		if file == nil {
			return
		}

		// LoadConfigFile and ConfigFromEnv only return valid files; an invalid
		// hand-built one is ignored.
		_ = file.Apply(o)
	}
}
