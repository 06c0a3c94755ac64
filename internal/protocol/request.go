package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/wagiedev/sidecar-go/internal/errors"
	"github.com/wagiedev/sidecar-go/internal/wire"
)

// Response is the reply to a request.
//
// Wire format:
//
//	{"type": "location_response", "location": {"lat": 35.6586, "lng": 139.7454}}
//
// Data holds the value of the field named after the request kind
// ("location" above). Failing that it holds the "data" field, and failing
// that every field except "type" and "id".
type Response struct {
	// Kind is the request kind, e.g. "location".
	Kind string

	// Data is the extracted payload.
	Data any

	// Message is the full response record.
	Message wire.Message
}

// Decode converts Data into v via JSON.
func (r *Response) Decode(v any) error {
	raw, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("encode %s response: %w", r.Kind, err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s response: %w", r.Kind, err)
	}

	return nil
}

func newResponse(kind string, msg wire.Message) *Response {
	return &Response{Kind: kind, Data: responseData(kind, msg), Message: msg}
}

func responseData(kind string, msg wire.Message) any {
	if v, ok := msg[kind]; ok {
		return v
	}

	if v, ok := msg[wire.FieldData]; ok {
		return v
	}

	rest := make(map[string]any, len(msg))

	for k, v := range msg {
		if k != wire.FieldType && k != wire.FieldID {
			rest[k] = v
		}
	}

	return rest
}

// requestError converts an "error" record into the failure of a kind request.
func requestError(kind string, msg wire.Message) *errors.RequestError {
	text := msg.String(wire.FieldMessage)
	if text == "" {
		text = msg.String("error")
	}

	return &errors.RequestError{Kind: kind, Message: text, Data: msg}
}

// pendingRequest tracks an outgoing request awaiting its response.
type pendingRequest struct {
	id       string
	kind     string
	response chan wire.Message

	// abandoned marks a request whose caller gave up. In ordered mode it keeps
	// its queue position so a late reply is consumed rather than misdelivered.
	abandoned bool
}
