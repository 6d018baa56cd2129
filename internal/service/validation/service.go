// Package validation implements the Validation Service: the policy-mixing
// component the proxy loop and the gateway façade both call to decide
// whether a JSON-RPC message is forwarded, blocked, or rewritten.
package validation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/javelin-guard/gateway/internal/adapter/outbound/guardrails"
	"github.com/javelin-guard/gateway/internal/domain/jsonrpc"
	"github.com/javelin-guard/gateway/internal/domain/rules"
	"github.com/javelin-guard/gateway/internal/domain/verdict"
)

// GuardrailsClient is the subset of the outbound Guardrails Client the
// Validation Service depends on. Declared here, rather than imported as a
// concrete type, so tests can substitute a stub evaluator.
type GuardrailsClient interface {
	ValidateRequest(ctx context.Context, method string, params map[string]interface{}, raw json.RawMessage) (verdict.Verdict, error)
	ValidateResponse(ctx context.Context, method string, params map[string]interface{}, raw json.RawMessage) (verdict.Verdict, error)
	HealthCheck(ctx context.Context) bool
	CacheStats() guardrails.CacheStats
	ClearCache()
}

// Service merges the local rule engine, an optional operator-supplied CEL
// rule table, a test-mode sentinel bypass, and the Guardrails Client into
// a single decision pipeline. It never returns an error to its caller —
// every branch resolves to a Verdict, per the design's "the service itself
// never surfaces an error except as a Verdict" contract.
type Service struct {
	guardrails GuardrailsClient
	extension  *rules.Extension
	testMode   bool
	failOpen   bool
}

// New builds a Service. extension may be nil (no operator CEL rules
// configured). testMode mirrors the "test-mode" api-key sentinel:
// when true, every message is approved without consulting guardrails.
func New(guardrails GuardrailsClient, extension *rules.Extension, testMode, failOpen bool) *Service {
	return &Service{
		guardrails: guardrails,
		extension:  extension,
		testMode:   testMode,
		failOpen:   failOpen,
	}
}

// ValidateRequest runs the decision pipeline for a request-direction
// message and never fails: any error from the Guardrails Client is
// absorbed and converted to a Verdict via the configured fail policy.
func (s *Service) ValidateRequest(ctx context.Context, msg *jsonrpc.Message) verdict.Verdict {
	method := msg.Method()
	params := msg.ParseParams()

	if out := rules.Evaluate(method, params); out.Matched {
		return verdict.New(false, out.Reason, out.Confidence)
	}

	if s.extension != nil {
		if out := s.extension.Evaluate(method, params); out.Matched {
			return verdict.New(false, out.Reason, out.Confidence)
		}
	}

	if s.testMode {
		return verdict.New(true, fmt.Sprintf("Test mode - %s validation bypassed", method), 1.0)
	}

	v, err := s.guardrails.ValidateRequest(ctx, method, params, msg.Raw)
	if err != nil {
		return s.failPolicyVerdict(err)
	}
	return v
}

// ValidateResponse runs the decision pipeline for a response-direction
// message. Internally this is ValidateRequest with the verdict's reason
// rewritten for the response leg, and with failures always resolved to
// allow regardless of fail policy — a response has already been produced
// by the upstream server, and withholding it loses information the client
// can never recover.
func (s *Service) ValidateResponse(ctx context.Context, msg *jsonrpc.Message) verdict.Verdict {
	method := msg.Method()
	params := msg.ParseParams()

	if out := rules.Evaluate(method, params); out.Matched {
		return verdict.New(false, out.Reason, out.Confidence).AsResponseDirection()
	}

	if s.extension != nil {
		if out := s.extension.Evaluate(method, params); out.Matched {
			return verdict.New(false, out.Reason, out.Confidence).AsResponseDirection()
		}
	}

	if s.testMode {
		return verdict.New(true, fmt.Sprintf("Test mode - %s validation bypassed", method), 1.0).AsResponseDirection()
	}

	v, err := s.guardrails.ValidateResponse(ctx, method, params, msg.Raw)
	if err != nil {
		return verdict.New(true, fmt.Sprintf("Validation service unavailable, failing open: %v", err), 0.0).AsResponseDirection()
	}
	return v.AsResponseDirection()
}

// failPolicyVerdict converts a Guardrails Client error into a verdict
// according to the configured fail policy.
func (s *Service) failPolicyVerdict(err error) verdict.Verdict {
	if s.failOpen {
		return verdict.New(true, fmt.Sprintf("Validation service unavailable, failing open: %v", err), 0.0)
	}
	return verdict.New(false, fmt.Sprintf("Validation service unavailable, failing closed: %v", err), 0.0)
}

// CreateBlockedResponse builds the -32600 JSON-RPC error for a blocked
// message, correlating it back to the original message's id.
func (s *Service) CreateBlockedResponse(msg *jsonrpc.Message, v verdict.Verdict) []byte {
	return verdict.BlockedResponse(msg.RawID(), v, "javelin-gateway")
}

// CreateErrorResponse builds the -32603 JSON-RPC error for an internal
// validation failure.
func (s *Service) CreateErrorResponse(msg *jsonrpc.Message, message string) []byte {
	return verdict.InternalErrorResponse(msg.RawID(), message, "javelin-gateway")
}

// ValidateAndHandle runs ValidateRequest and, if the message was blocked,
// also builds the ready-to-send error response. Callers that only need
// "forward or emit this exact payload" can skip re-deriving the error
// shape themselves.
func (s *Service) ValidateAndHandle(ctx context.Context, msg *jsonrpc.Message) (v verdict.Verdict, blockedResponse []byte) {
	v = s.ValidateRequest(ctx, msg)
	if !v.Allowed {
		blockedResponse = s.CreateBlockedResponse(msg, v)
	}
	return v, blockedResponse
}

// FailOpen reports the configured fail policy.
func (s *Service) FailOpen() bool { return s.failOpen }

// HealthCheck passes through to the Guardrails Client's health probe.
func (s *Service) HealthCheck(ctx context.Context) bool {
	if s.testMode {
		return true
	}
	return s.guardrails.HealthCheck(ctx)
}

// CacheStats passes through to the Guardrails Client's cache counters.
func (s *Service) CacheStats() guardrails.CacheStats {
	return s.guardrails.CacheStats()
}

// ClearCache passes through to the Guardrails Client's cache.
func (s *Service) ClearCache() {
	s.guardrails.ClearCache()
}
