// Package proxy implements the bidirectional JSON-RPC proxy loop: two
// directional workers that read framed messages, run them through the
// Validation Service, and forward, block, or rewrite them.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/javelin-guard/gateway/internal/domain/jsonrpc"
	"github.com/javelin-guard/gateway/internal/domain/sanitize"
	"github.com/javelin-guard/gateway/internal/domain/verdict"
	"github.com/javelin-guard/gateway/pkg/codec"
)

// Validator is the subset of the Validation Service the proxy loop depends
// on, declared here so tests can substitute a stub rather than wiring the
// real guardrails client through every test.
type Validator interface {
	ValidateRequest(ctx context.Context, msg *jsonrpc.Message) verdict.Verdict
	ValidateResponse(ctx context.Context, msg *jsonrpc.Message) verdict.Verdict
	CreateBlockedResponse(msg *jsonrpc.Message, v verdict.Verdict) []byte
}

// Service runs the two directional workers over a single client<->server
// pipe pair. One Service instance handles exactly one session: the stdio
// child process in proxy mode. The HTTP gateway's /mcp route does not use
// it; it pairs requests and responses in its own per-session handler.
type Service struct {
	validator   Validator
	correlation *jsonrpc.CorrelationTable
	logger      *slog.Logger
}

// New builds a Service with a fresh, empty Correlation Table.
func New(validator Validator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		validator:   validator,
		correlation: jsonrpc.NewCorrelationTable(),
		logger:      logger,
	}
}

// Run proxies messages between clientIn/clientOut and serverIn/serverOut
// until one direction hits EOF or an unrecoverable error, then tears down
// the other direction and returns. serverIn is closed on the way out to
// signal EOF to the downstream process; closing the actual OS process is
// the caller's responsibility (the stdio transport owns the child.Process).
//
// Run blocks until both directional workers have exited. It returns the
// first error observed, or nil on a clean EOF-driven shutdown.
func (s *Service) Run(ctx context.Context, clientIn io.Reader, clientOut io.Writer, serverIn io.WriteCloser, serverOut io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		defer func() { _ = serverIn.Close() }()
		if err := s.clientToServer(ctx, clientIn, clientOut, serverIn); err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				errCh <- fmt.Errorf("client->server: %w", err)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := s.serverToClient(ctx, serverOut, clientOut); err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				errCh <- fmt.Errorf("server->client: %w", err)
			}
		}
	}()

	wg.Add(1)
	go func() { // unblock the surviving worker's read once either exits
		defer wg.Done()
		<-ctx.Done()
		for _, r := range []io.Reader{clientIn, serverOut} {
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}()

	wg.Wait()
	close(errCh)
	return <-errCh
}

// clientToServer implements the request-direction worker: read, validate,
// and either forward to the server or write a blocked response back to the
// client. read -> validate -> write is serialized within this loop so the
// egress framing is never interleaved with the next inbound read.
func (s *Service) clientToServer(ctx context.Context, clientIn io.Reader, clientOut io.Writer, serverIn io.Writer) error {
	reader := codec.NewReader(clientIn)
	writer := codec.NewWriter(serverIn)
	clientWriter := codec.NewWriter(clientOut)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := reader.ReadMessage()
		if err != nil {
			return err
		}

		msg, parseErr := jsonrpc.Parse(raw, jsonrpc.ClientToServer, time.Now())
		if parseErr != nil {
			s.logger.Debug("client->server: forwarding unparseable payload unchanged",
				"error", parseErr, "preview", sanitizePreview(raw))
			if err := writer.WriteMessage(raw); err != nil {
				return fmt.Errorf("forward unparsed message: %w", err)
			}
			continue
		}

		s.logger.Debug("client->server", "method", msg.Method(), "preview", sanitizePreview(raw))

		v := s.validator.ValidateRequest(ctx, msg)
		if v.Allowed {
			if key, ok := msg.CorrelationKey(); ok {
				s.correlation.Put(key, msg)
			}
			if err := writer.WriteMessage(raw); err != nil {
				return fmt.Errorf("forward request: %w", err)
			}
			continue
		}

		blocked := s.validator.CreateBlockedResponse(msg, v)
		if err := clientWriter.WriteMessage(blocked); err != nil {
			return fmt.Errorf("write blocked response: %w", err)
		}
	}
}

// serverToClient implements the response-direction worker: read, validate,
// and forward to the client, whether allowed or blocked — a response has
// already left the server, so there is nowhere else to send it. Correlation
// entries are removed on arrival regardless of the verdict.
func (s *Service) serverToClient(ctx context.Context, serverOut io.Reader, clientOut io.Writer) error {
	reader := codec.NewReader(serverOut)
	writer := codec.NewWriter(clientOut)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := reader.ReadMessage()
		if err != nil {
			return err
		}

		msg, parseErr := jsonrpc.Parse(raw, jsonrpc.ServerToClient, time.Now())
		if parseErr != nil {
			s.logger.Debug("server->client: forwarding unparseable payload unchanged",
				"error", parseErr, "preview", sanitizePreview(raw))
			if err := writer.WriteMessage(raw); err != nil {
				return fmt.Errorf("forward unparsed message: %w", err)
			}
			continue
		}

		if key, ok := msg.CorrelationKey(); ok {
			s.correlation.Remove(key)
		}

		v := s.validator.ValidateResponse(ctx, msg)
		out := raw
		if !v.Allowed {
			out = s.validator.CreateBlockedResponse(msg, v)
		}
		if err := writer.WriteMessage(out); err != nil {
			return fmt.Errorf("forward response: %w", err)
		}
	}
}

// PendingCorrelations reports how many requests are awaiting a response,
// for health/diagnostic surfaces.
func (s *Service) PendingCorrelations() int {
	return s.correlation.Len()
}

// sanitizePreview parses raw for a log-safe preview, falling back to a
// fixed placeholder when it isn't valid JSON (the sanitizer operates on
// decoded JSON values, not raw bytes).
func sanitizePreview(raw []byte) interface{} {
	v, err := jsonrpc.ParseEnvelope(raw)
	if err != nil {
		return "<unparseable>"
	}
	return sanitize.Value(v)
}
