// Package frame implements the JSON wire envelope exchanged with the gateway.
package frame

import (
	"bytes"
	"encoding/json"

	"github.com/abeazam/pocketClaw/errors"
)

// Wire values of the envelope discriminator field.
const (
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"
)

// Kind identifies which frame variant a decode produced.
type Kind int

const (
	// KindUnknown covers unrecognized discriminators and undecodable input.
	KindUnknown Kind = iota
	// KindResponse is a reply to a previously sent request.
	KindResponse
	// KindEvent is a server-initiated notification.
	KindEvent
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Request is a client-to-server RPC frame. IDs are decimal strings; peers
// may treat them as opaque.
type Request struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorDetail carries the structured error block of a failed response.
type ErrorDetail struct {
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Response is a server reply correlated to a Request by ID. Payload is
// present iff OK.
type Response struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

// ErrorMessage returns the server-supplied error message, or fallback when
// the response carries none.
func (r *Response) ErrorMessage(fallback string) string {
	if r.Error != nil && r.Error.Message != "" {
		return r.Error.Message
	}
	return fallback
}

// Event is a server-initiated notification. Unlike responses it has no ID.
type Event struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decoded is the result of decoding one inbound frame. Exactly one of
// Response and Event is non-nil when Kind is not KindUnknown.
type Decoded struct {
	Kind     Kind
	Response *Response
	Event    *Event
}

// envelope probes only the discriminator before a full decode.
type envelope struct {
	Type string `json:"type"`
}

// Decode parses one inbound frame. It discriminates on the "type" field
// first and only then fully decodes the matching variant. Any decode
// failure at either stage, or an unrecognized discriminator, yields
// KindUnknown rather than an error: a malformed frame must never take
// down the receive loop.
func Decode(data []byte) Decoded {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Decoded{Kind: KindUnknown}
	}

	switch env.Type {
	case TypeResponse:
		var res Response
		if err := json.Unmarshal(data, &res); err != nil {
			return Decoded{Kind: KindUnknown}
		}
		return Decoded{Kind: KindResponse, Response: &res}
	case TypeEvent:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return Decoded{Kind: KindUnknown}
		}
		return Decoded{Kind: KindEvent, Event: &ev}
	default:
		return Decoded{Kind: KindUnknown}
	}
}

var (
	jsonNull        = []byte("null")
	jsonEmptyObject = []byte("{}")
)

// emptyParams reports whether params should be omitted from the envelope.
// Peers treat the presence of "params" as "may contain overrides", so an
// empty set is dropped entirely rather than sent as null or {}.
func emptyParams(params json.RawMessage) bool {
	trimmed := bytes.TrimSpace(params)
	return len(trimmed) == 0 ||
		bytes.Equal(trimmed, jsonNull) ||
		bytes.Equal(trimmed, jsonEmptyObject)
}

// EncodeRequest serializes a request frame, omitting the params key when
// the parameter set is empty.
func EncodeRequest(id, method string, params json.RawMessage) ([]byte, error) {
	req := Request{
		Type:   TypeRequest,
		ID:     id,
		Method: method,
	}
	if !emptyParams(params) {
		req.Params = params
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.WrapInvalid(err, "frame", "EncodeRequest", "marshal request")
	}
	return data, nil
}

// Params marshals an arbitrary parameter value into the raw form
// EncodeRequest expects. A nil value maps to absent params.
func Params(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapInvalid(err, "frame", "Params", "marshal params")
	}
	return data, nil
}
