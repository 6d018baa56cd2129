package proxy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/javelin-guard/gateway/internal/domain/jsonrpc"
	"github.com/javelin-guard/gateway/internal/domain/verdict"
	"github.com/javelin-guard/gateway/pkg/codec"
)

// stubValidator is a hand-written Validator stub letting tests control the
// pipeline's decisions directly, independent of the rule engine / guardrails
// wiring tested elsewhere.
type stubValidator struct {
	requestAllowed  bool
	requestReason   string
	responseAllowed bool
	responseReason  string
}

func (s *stubValidator) ValidateRequest(ctx context.Context, msg *jsonrpc.Message) verdict.Verdict {
	return verdict.New(s.requestAllowed, s.requestReason, 0.9)
}

func (s *stubValidator) ValidateResponse(ctx context.Context, msg *jsonrpc.Message) verdict.Verdict {
	return verdict.New(s.responseAllowed, s.responseReason, 0.9)
}

func (s *stubValidator) CreateBlockedResponse(msg *jsonrpc.Message, v verdict.Verdict) []byte {
	return verdict.BlockedResponse(msg.RawID(), v, "javelin-gateway")
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPipes wires up the four io endpoints a Service.Run call needs,
// simulating client stdin/stdout and the downstream server's stdin/stdout.
type testPipes struct {
	clientInW  io.WriteCloser // test writes here to simulate the client sending
	clientOutR io.ReadCloser  // test reads here to see what the client receives
	serverInR  io.ReadCloser  // test reads here to see what the server receives
	serverOutW io.WriteCloser // test writes here to simulate the server responding

	clientIn  io.Reader
	clientOut io.Writer
	serverIn  io.WriteCloser
	serverOut io.Reader
}

func newTestPipes() *testPipes {
	clientInR, clientInW := io.Pipe()
	clientOutR, clientOutW := io.Pipe()
	serverInR, serverInW := io.Pipe()
	serverOutR, serverOutW := io.Pipe()

	return &testPipes{
		clientInW:  clientInW,
		clientOutR: clientOutR,
		serverInR:  serverInR,
		serverOutW: serverOutW,
		clientIn:   clientInR,
		clientOut:  clientOutW,
		serverIn:   serverInW,
		serverOut:  serverOutR,
	}
}

func readOneFramed(t *testing.T, r io.Reader) []byte {
	t.Helper()
	reader := codec.NewReader(r)
	msg, err := reader.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() unexpected error: %v", err)
	}
	return msg
}

func writeOneFramed(t *testing.T, w io.Writer, payload []byte) {
	t.Helper()
	if err := codec.NewWriter(w).WriteMessage(payload); err != nil {
		t.Fatalf("WriteMessage() unexpected error: %v", err)
	}
}

func TestRun_AllowedRequestForwardsToServerAndCorrelates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pipes := newTestPipes()
	svc := New(&stubValidator{requestAllowed: true}, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- svc.Run(ctx, pipes.clientIn, pipes.clientOut, pipes.serverIn, pipes.serverOut)
	}()

	req := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"read_file"}}`)
	writeOneFramed(t, pipes.clientInW, req)

	got := readOneFramed(t, pipes.serverInR)
	if string(got) != string(req) {
		t.Errorf("server received %s, want %s", got, req)
	}

	if n := svc.PendingCorrelations(); n != 1 {
		t.Errorf("PendingCorrelations() = %d, want 1", n)
	}

	_ = pipes.clientInW.Close()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Run to return")
	}
}

func TestRun_BlockedRequestWritesErrorToClientNotServer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pipes := newTestPipes()
	svc := New(&stubValidator{requestAllowed: false, requestReason: "Request blocked: dangerous"}, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- svc.Run(ctx, pipes.clientIn, pipes.clientOut, pipes.serverIn, pipes.serverOut)
	}()

	req := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"exec_shell"}}`)
	writeOneFramed(t, pipes.clientInW, req)

	resp := readOneFramed(t, pipes.clientOutR)

	var decoded verdict.Error
	if err := json.Unmarshal(resp, &decoded); err != nil {
		t.Fatalf("failed to decode blocked response: %v", err)
	}
	if decoded.Error.Code != verdict.CodeBlocked {
		t.Errorf("Code = %d, want %d", decoded.Error.Code, verdict.CodeBlocked)
	}

	if n := svc.PendingCorrelations(); n != 0 {
		t.Errorf("PendingCorrelations() = %d, want 0 for a blocked request", n)
	}

	_ = pipes.clientInW.Close()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Run to return")
	}
}

func TestRun_ResponseRemovesCorrelationRegardlessOfVerdict(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pipes := newTestPipes()
	svc := New(&stubValidator{requestAllowed: true, responseAllowed: false, responseReason: "Response blocked"}, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- svc.Run(ctx, pipes.clientIn, pipes.clientOut, pipes.serverIn, pipes.serverOut)
	}()

	req := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"read_file"}}`)
	writeOneFramed(t, pipes.clientInW, req)
	_ = readOneFramed(t, pipes.serverInR)

	if n := svc.PendingCorrelations(); n != 1 {
		t.Fatalf("PendingCorrelations() = %d, want 1 before the response arrives", n)
	}

	resp := []byte(`{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`)
	writeOneFramed(t, pipes.serverOutW, resp)

	clientResp := readOneFramed(t, pipes.clientOutR)
	var decoded verdict.Error
	if err := json.Unmarshal(clientResp, &decoded); err != nil {
		t.Fatalf("failed to decode client response: %v", err)
	}
	if decoded.Error.Code != verdict.CodeBlocked {
		t.Errorf("Code = %d, want %d", decoded.Error.Code, verdict.CodeBlocked)
	}

	if n := svc.PendingCorrelations(); n != 0 {
		t.Errorf("PendingCorrelations() = %d, want 0 after the response arrives", n)
	}

	_ = pipes.clientInW.Close()
	_ = pipes.serverOutW.Close()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Run to return")
	}
}

func TestRun_UnparseablePayloadForwardedUnchanged(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pipes := newTestPipes()
	svc := New(&stubValidator{requestAllowed: false}, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- svc.Run(ctx, pipes.clientIn, pipes.clientOut, pipes.serverIn, pipes.serverOut)
	}()

	malformed := []byte(`{not valid json`)
	writeOneFramed(t, pipes.clientInW, malformed)

	got := readOneFramed(t, pipes.serverInR)
	if string(got) != string(malformed) {
		t.Errorf("server received %s, want unchanged %s", got, malformed)
	}

	_ = pipes.clientInW.Close()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Run to return")
	}
}

func TestRun_ClientEOFTerminatesBothWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pipes := newTestPipes()
	svc := New(&stubValidator{requestAllowed: true}, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- svc.Run(ctx, pipes.clientIn, pipes.clientOut, pipes.serverIn, pipes.serverOut)
	}()

	_ = pipes.clientInW.Close()

	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run() = %v, want nil on clean client EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Run to return after client EOF")
	}

	// serverIn should have been closed to propagate EOF to the downstream
	// process.
	if _, err := pipes.serverInR.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("expected serverIn to be closed (EOF), got err=%v", err)
	}
}
