// Package verdict defines the Validation Verdict record and the JSON-RPC
// error shapes the gateway emits when a message is blocked or cannot be
// validated.
package verdict

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JSON-RPC error codes the gateway uses for blocked and internally-failed
// messages.
const (
	// CodeBlocked is emitted when a local rule or the guardrails evaluator
	// blocks a message.
	CodeBlocked = -32600
	// CodeInternal is emitted for internal validation errors (class 4/5 in
	// the error taxonomy), never for policy blocks.
	CodeInternal = -32603
)

// Verdict is the outcome of validating a single JSON-RPC message. Allowed
// messages still carry Reason/Confidence when a rule or the evaluator
// ran — it's only the fail-open/test-mode bypass paths that leave them
// generic.
type Verdict struct {
	Allowed    bool      `json:"allowed"`
	Reason     string    `json:"reason,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// New mints a verdict with a fresh request id and a decision timestamp.
// Every call site gets an independent request id — verdicts are never
// reused wholesale, even when their Allowed/Reason/Confidence came from a
// cache hit, so a cache hit is indistinguishable from a fresh verdict
// except for RequestID and Timestamp.
func New(allowed bool, reason string, confidence float64) Verdict {
	return Verdict{
		Allowed:    allowed,
		Reason:     reason,
		Confidence: &confidence,
		RequestID:  uuid.NewString(),
		Timestamp:  time.Now().UTC(),
	}
}

// NewWithoutConfidence mints a verdict that doesn't carry a confidence
// score, for callers that short-circuit before any scoring happens.
func NewWithoutConfidence(allowed bool, reason string) Verdict {
	return Verdict{
		Allowed:   allowed,
		Reason:    reason,
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
}

// AsResponseDirection rewrites a request-direction verdict's reason for use
// on the response leg, substituting "Response" for "Request" so a rule or
// evaluator reason written for the request side still reads naturally when
// attached to a response-direction block. Allowed/Confidence are untouched;
// only Reason and RequestID/Timestamp (freshly reminted) change.
func (v Verdict) AsResponseDirection() Verdict {
	out := v
	out.Reason = strings.ReplaceAll(v.Reason, "Request", "Response")
	out.RequestID = uuid.NewString()
	out.Timestamp = time.Now().UTC()
	return out
}

// Error is a JSON-RPC 2.0 error object as sent on the wire.
type Error struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   ErrorPayload    `json:"error"`
}

// ErrorPayload is the "error" field of a JSON-RPC error response.
type ErrorPayload struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the structured fields attached to a blocked or
// internal-error JSON-RPC response.
type ErrorData struct {
	Reason     string    `json:"reason,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
	BlockedBy  string    `json:"blocked_by"`
}

// BlockedResponse builds the -32600 error emitted when v.Allowed is false.
// id is the raw JSON-RPC id of the message being blocked (may be nil for a
// blocked notification, though the proxy loop never needs to answer one).
func BlockedResponse(id json.RawMessage, v Verdict, blockedBy string) []byte {
	errResp := Error{
		JSONRPC: "2.0",
		ID:      id,
		Error: ErrorPayload{
			Code:    CodeBlocked,
			Message: "Request blocked by policy",
			Data: &ErrorData{
				Reason:     v.Reason,
				Confidence: v.Confidence,
				RequestID:  v.RequestID,
				Timestamp:  v.Timestamp,
				BlockedBy:  blockedBy,
			},
		},
	}
	b, err := json.Marshal(errResp)
	if err != nil {
		// ErrorData contains no unmarshalable fields; this cannot fail in
		// practice, but a nil slice is a safer fallback than a panic.
		return nil
	}
	return b
}

// InternalErrorResponse builds the -32603 error for internal validation
// failures. Never used for policy blocks — those always go through
// BlockedResponse.
func InternalErrorResponse(id json.RawMessage, message, blockedBy string) []byte {
	errResp := Error{
		JSONRPC: "2.0",
		ID:      id,
		Error: ErrorPayload{
			Code:    CodeInternal,
			Message: message,
			Data: &ErrorData{
				BlockedBy: blockedBy,
			},
		},
	}
	b, err := json.Marshal(errResp)
	if err != nil {
		return nil
	}
	return b
}
