// Package jsonrpc provides the gateway's JSON-RPC message model: a thin
// wrapper around the MCP SDK's wire types that exposes just the fields the
// validation pipeline needs (method, params, id) while keeping the original
// bytes around for transparent passthrough.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates which way a message is flowing through the proxy.
type Direction int

const (
	// ClientToServer indicates a message flowing from the MCP client to the
	// upstream server (a request, in the common case).
	ClientToServer Direction = iota
	// ServerToClient indicates a message flowing from the upstream server
	// back to the client (a response, in the common case).
	ServerToClient
)

// String returns a human-readable direction label, used in log lines.
func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "client->server"
	case ServerToClient:
		return "server->client"
	default:
		return "unknown"
	}
}

// ProtocolError marks a framing or decode failure: malformed JSON or a
// truncated frame. The proxy loop forwards the raw bytes unchanged when it
// sees this error, rather than attempting to validate or block.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("jsonrpc: protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Message wraps a decoded JSON-RPC value with proxy bookkeeping. The Decoded
// field is nil when parsing failed; Raw is always populated.
type Message struct {
	// Raw holds the exact bytes read from the wire, used for byte-exact
	// passthrough when no rewriting is needed.
	Raw []byte

	// Direction records which leg of the proxy produced this message.
	Direction Direction

	// Decoded is either *jsonrpc.Request or *jsonrpc.Response, or nil if
	// Raw failed to parse.
	Decoded jsonrpc.Message

	// Timestamp is when the gateway received the message.
	Timestamp time.Time

	// parsedParams caches the result of ParseParams.
	parsedParams    map[string]interface{}
	parsedParamsSet bool
}

// Parse decodes raw bytes into a Message. On decode failure it returns a
// Message with Decoded == nil and a *ProtocolError, rather than discarding
// the raw bytes — callers that only need passthrough can still use Raw.
func Parse(raw []byte, dir Direction, at time.Time) (*Message, error) {
	decoded, err := jsonrpc.DecodeMessage(raw)
	msg := &Message{
		Raw:       raw,
		Direction: dir,
		Timestamp: at,
	}
	if err != nil {
		return msg, &ProtocolError{Err: err}
	}
	msg.Decoded = decoded
	return msg, nil
}

// IsRequest reports whether the message decoded as a JSON-RPC request
// (which, per the MCP SDK's modeling, also covers notifications — a request
// with no id).
func (m *Message) IsRequest() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse reports whether the message decoded as a JSON-RPC response.
func (m *Message) IsResponse() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Request returns the underlying request, or nil if this isn't one.
func (m *Message) Request() *jsonrpc.Request {
	if m.Decoded == nil {
		return nil
	}
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying response, or nil if this isn't one.
func (m *Message) Response() *jsonrpc.Response {
	if m.Decoded == nil {
		return nil
	}
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// Method returns the request method, defaulting to "unknown" when the
// message has no method (e.g. it's a response, or decode produced neither
// request nor response cleanly).
func (m *Message) Method() string {
	req := m.Request()
	if req == nil || req.Method == "" {
		return "unknown"
	}
	return req.Method
}

// IsNotification reports whether this is a request with no id — the MCP SDK
// models notifications this way (Request.IsCall() is false).
func (m *Message) IsNotification() bool {
	req := m.Request()
	return req != nil && !req.IsCall()
}

// ParseParams lazily parses the request's params into a generic map for
// rule-engine inspection. Safe to call repeatedly; the first result is
// cached. Returns nil if this isn't a request, has no params, or params
// isn't a JSON object.
func (m *Message) ParseParams() map[string]interface{} {
	if m.parsedParamsSet {
		return m.parsedParams
	}
	m.parsedParamsSet = true

	req := m.Request()
	if req == nil || len(req.Params) == 0 {
		return nil
	}

	var params map[string]interface{}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}
	m.parsedParams = params
	return params
}

// RawID extracts the "id" field directly from the raw bytes as
// json.RawMessage, preserving its original representation (string, number,
// or absent). This sidesteps the MCP SDK's jsonrpc.ID type, which does not
// round-trip cleanly through interface{}.
func (m *Message) RawID() json.RawMessage {
	if len(m.Raw) == 0 {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}
	return raw["id"]
}

// HasID reports whether RawID is present and non-null.
func (m *Message) HasID() bool {
	id := m.RawID()
	return len(id) > 0 && string(id) != "null"
}

// CorrelationKey returns a stable, comparable representation of the
// message's id suitable for use as a Correlation Table key. Two ids are the
// same key iff their raw JSON representations are byte-identical, so the
// numeric id 1 and the string id "1" are distinct keys, matching JSON-RPC's
// type-sensitive identity rule.
func (m *Message) CorrelationKey() (string, bool) {
	id := m.RawID()
	if len(id) == 0 || string(id) == "null" {
		return "", false
	}
	return string(id), true
}

// EncodeMessage serializes a decoded JSON-RPC message back to wire bytes.
func EncodeMessage(msg jsonrpc.Message) ([]byte, error) {
	return jsonrpc.EncodeMessage(msg)
}

// ErrNotJSON is returned by ParseEnvelope when raw bytes don't even parse as
// a JSON value (distinct from failing MCP/JSON-RPC structural validation).
var ErrNotJSON = errors.New("jsonrpc: not valid JSON")

// ParseEnvelope parses raw bytes into a generic JSON value (map, slice,
// string, float64, bool, or nil), for components — like the proxy loop's
// sanitized log preview — that need the full tree rather than just
// method/params.
func ParseEnvelope(raw []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return v, nil
}
