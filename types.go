package sidecar

import (
	"github.com/wagiedev/sidecar-go/internal/config"
	"github.com/wagiedev/sidecar-go/internal/protocol"
	"github.com/wagiedev/sidecar-go/internal/wire"
)

// Re-export types from internal packages

// ===== Options and Configuration =====

// Options configures a client.
type Options = config.Options

// ConfigFile is the TOML, YAML or environment form of Options.
type ConfigFile = config.File

// LoadConfigFile reads a .toml, .yaml or .yml configuration file.
func LoadConfigFile(path string) (*ConfigFile, error) {
	return config.LoadFile(path)
}

// ConfigFromEnv reads SIDECAR_* environment variables.
func ConfigFromEnv() (*ConfigFile, error) {
	return config.FromEnv()
}

// Correlation selects how responses are matched to requests.
type Correlation = config.Correlation

const (
	// CorrelationOrdered serializes requests and matches responses in send order.
	CorrelationOrdered = config.CorrelationOrdered
	// CorrelationID tags each request with an "id" that the child echoes back.
	CorrelationID = config.CorrelationID
)

// Defaults applied to unset options.
const (
	DefaultProtocol         = config.DefaultProtocol
	DefaultProtocolVersion  = config.DefaultProtocolVersion
	DefaultHandshakeTimeout = config.DefaultHandshakeTimeout
	DefaultRequestTimeout   = config.DefaultRequestTimeout
	DefaultTerminateTimeout = config.DefaultTerminateTimeout
)

// EventHandler receives unsolicited messages in arrival order. It may block or
// issue requests, but must not call Close.
type EventHandler = config.EventHandler

// ===== Messages =====

// Message is one JSON record exchanged with the child.
type Message = wire.Message

// NewMessage creates a message with the given "type" and fields.
func NewMessage(msgType string, fields map[string]any) Message {
	return wire.New(msgType, fields)
}

// Message discriminators.
const (
	TypeConnect        = wire.TypeConnect
	TypeConnected      = wire.TypeConnected
	TypeDisconnect     = wire.TypeDisconnect
	TypeError          = wire.TypeError
	TypeLocationUpdate = wire.TypeLocationUpdate
)

// Response is the reply to a request.
type Response = protocol.Response

// Location is a geocoded point returned by a location request.
type Location = protocol.Location

// KindLocation is the request kind of a geocoding lookup.
const KindLocation = protocol.KindLocation

// ===== Session State =====

// State is the lifecycle state of a session.
type State = protocol.State

const (
	StateIdle       = protocol.StateIdle
	StateConnecting = protocol.StateConnecting
	StateConnected  = protocol.StateConnected
	StateClosing    = protocol.StateClosing
	StateClosed     = protocol.StateClosed
	StateErrored    = protocol.StateErrored
)

// Disconnect reasons sent to the child.
const (
	ReasonNormalClosure   = protocol.ReasonNormalClosure
	ReasonHandshakeFailed = protocol.ReasonHandshakeFailed
	ReasonTransportError  = protocol.ReasonTransportError
	ReasonChildExited     = protocol.ReasonChildExited
)

// ===== Transport =====

// ExitStatus reports whether and how the child exited.
type ExitStatus = config.ExitStatus
