package httpgw

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/javelin-guard/gateway/internal/adapter/outbound/license"
	"github.com/javelin-guard/gateway/internal/config"
	"github.com/javelin-guard/gateway/internal/domain/jsonrpc"
	"github.com/javelin-guard/gateway/internal/domain/verdict"
)

type stubValidator struct {
	allowed bool
	reason  string
	healthy bool
}

func (s *stubValidator) ValidateRequest(ctx context.Context, msg *jsonrpc.Message) verdict.Verdict {
	return verdict.New(s.allowed, s.reason, 0.9)
}

func (s *stubValidator) ValidateResponse(ctx context.Context, msg *jsonrpc.Message) verdict.Verdict {
	return verdict.New(s.allowed, s.reason, 0.9)
}

func (s *stubValidator) CreateBlockedResponse(msg *jsonrpc.Message, v verdict.Verdict) []byte {
	return verdict.BlockedResponse(msg.RawID(), v, "javelin-gateway")
}

func (s *stubValidator) HealthCheck(ctx context.Context) bool {
	return s.healthy
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(v *stubValidator) *Handler {
	return New(v, license.NewStub(), config.TargetConfig{Command: "/bin/cat"}, nil, discardLogger())
}

func TestHandleHealth_Healthy(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&stubValidator{healthy: true})
	defer h.Close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("Status = %q, want ok", body.Status)
	}
	if body.Service != "javelin-gateway" {
		t.Errorf("Service = %q, want javelin-gateway", body.Service)
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&stubValidator{healthy: false})
	defer h.Close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleLicense_ReturnsStubStatus(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&stubValidator{healthy: true})
	defer h.Close()

	req := httptest.NewRequest(http.MethodGet, "/license", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body license.Status
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Valid {
		t.Error("expected the stub license to report valid")
	}
}

func TestHandleValidate_AllowedMessage(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&stubValidator{allowed: true})
	defer h.Close()

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp validateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Valid {
		t.Error("expected valid=true")
	}
	if resp.RequestID == "" {
		t.Error("expected a non-empty request_id")
	}
}

func TestHandleValidate_BlockedMessage(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&stubValidator{allowed: false, reason: "blocked for testing"})
	defer h.Close()

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"exec_shell"}}`)
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// Policy blocks are HTTP 200 with valid:false, never a 500.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp validateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Valid {
		t.Error("expected valid=false")
	}
	if resp.Reason != "blocked for testing" {
		t.Errorf("Reason = %q, want %q", resp.Reason, "blocked for testing")
	}
}

func TestHandleValidate_MalformedBodyIsHardError(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&stubValidator{allowed: true})
	defer h.Close()

	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader([]byte(`not json`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestServeHTTP_PermissiveCORS(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&stubValidator{healthy: true})
	defer h.Close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestServeHTTP_OptionsPreflight(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&stubValidator{healthy: true})
	defer h.Close()

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestHandleMCP_AllowedRoundTripsThroughCatChild(t *testing.T) {
	t.Parallel()
	h := New(&stubValidator{allowed: true}, license.NewStub(), config.TargetConfig{Command: "/bin/cat"}, nil, discardLogger())
	defer h.Close()

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if rec.Header().Get("Mcp-Session-Id") == "" {
		t.Error("expected a session id to be assigned")
	}
}

func TestHandleMCP_BlockedRequestNeverReachesDownstream(t *testing.T) {
	t.Parallel()
	h := New(&stubValidator{allowed: false, reason: "nope"}, license.NewStub(), config.TargetConfig{Command: "/bin/cat"}, nil, discardLogger())
	defer h.Close()

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"exec_shell"}}`)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var decoded verdict.Error
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Error.Code != verdict.CodeBlocked {
		t.Errorf("Code = %d, want %d", decoded.Error.Code, verdict.CodeBlocked)
	}
}
