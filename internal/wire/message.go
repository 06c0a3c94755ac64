// Package wire implements the newline-delimited JSON framing spoken with the
// child process.
//
// Every record on the wire is exactly one JSON object followed by a single
// newline. The package has no knowledge of message semantics beyond the
// "type" discriminator and the optional "id" correlation field.
package wire

import (
	"maps"
	"strings"
)

// Message discriminators used by the session protocol.
const (
	TypeConnect        = "connect"
	TypeConnected      = "connected"
	TypeDisconnect     = "disconnect"
	TypeError          = "error"
	TypeLocationUpdate = "location_update"
)

// Well-known message fields.
const (
	FieldType     = "type"
	FieldID       = "id"
	FieldProtocol = "protocol"
	FieldVersion  = "version"
	FieldReason   = "reason"
	FieldQuery    = "query"
	FieldLocation = "location"
	FieldData     = "data"
	FieldMessage  = "message"
)

const (
	requestSuffix  = "_request"
	responseSuffix = "_response"
)

// Message is a single decoded wire record. Decoded numbers are float64, except
// integers beyond 2^53, which are kept as json.Number.
type Message map[string]any

// New creates a message with the given discriminator and copies fields into it.
// A "type" key in fields is overwritten.
func New(msgType string, fields map[string]any) Message {
	msg := make(Message, len(fields)+1)
	maps.Copy(msg, fields)
	msg[FieldType] = msgType

	return msg
}

// Type returns the message discriminator, or "" if absent.
func (m Message) Type() string {
	return m.String(FieldType)
}

// ID returns the correlation id, or "" if absent.
func (m Message) ID() string {
	return m.String(FieldID)
}

// String returns the string value of key, or "" if it is absent or not a string.
func (m Message) String(key string) string {
	s, _ := m[key].(string)

	return s
}

// Clone returns a shallow copy of the message.
func (m Message) Clone() Message {
	if m == nil {
		return nil
	}

	return maps.Clone(m)
}

// RequestType returns the discriminator for a request of the given kind.
func RequestType(kind string) string {
	return kind + requestSuffix
}

// ResponseType returns the discriminator for a response of the given kind.
func ResponseType(kind string) string {
	return kind + responseSuffix
}

// ResponseKind returns the kind encoded in a response discriminator.
// The second result is false if msgType is not a response discriminator.
func ResponseKind(msgType string) (string, bool) {
	kind, ok := strings.CutSuffix(msgType, responseSuffix)
	if !ok || kind == "" {
		return "", false
	}

	return kind, true
}
