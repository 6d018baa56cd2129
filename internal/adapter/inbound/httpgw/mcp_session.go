package httpgw

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/javelin-guard/gateway/internal/adapter/outbound/child"
	"github.com/javelin-guard/gateway/internal/config"
	"github.com/javelin-guard/gateway/internal/domain/jsonrpc"
	"github.com/javelin-guard/gateway/internal/domain/verdict"
	"github.com/javelin-guard/gateway/pkg/codec"
)

// defaultSessionIdleTimeout bounds how long an /mcp session's downstream
// child process stays alive without a request before it is reaped.
const defaultSessionIdleTimeout = 5 * time.Minute

// mcpValidator is the subset of the Validation Service the /mcp session
// pool depends on.
type mcpValidator interface {
	ValidateRequest(ctx context.Context, msg *jsonrpc.Message) verdict.Verdict
	ValidateResponse(ctx context.Context, msg *jsonrpc.Message) verdict.Verdict
	CreateBlockedResponse(msg *jsonrpc.Message, v verdict.Verdict) []byte
}

// mcpSession owns one downstream child process and serializes request/
// response pairs over its stdio, using the same Correlation Table
// component the stdio Proxy Loop uses: a forwarded request's id is put in
// the table before the write and removed only when a downstream message
// carrying that id is observed, rather than assuming the next message read
// off the pipe is necessarily the matching response. The streamable-HTTP
// transport is request-response per HTTP call, so unlike the stdio proxy
// loop there is no independent reader goroutine: each HTTP request performs
// a write, then reads until its own response arrives, under the session's
// lock.
type mcpSession struct {
	mu          sync.Mutex
	process     *child.Process
	reader      *codec.Reader
	writer      *codec.Writer
	correlation *jsonrpc.CorrelationTable
	logger      *slog.Logger
	lastActive  time.Time
}

// sessionPool spawns and reaps the downstream child processes backing
// /mcp sessions, keyed by the client-supplied Mcp-Session-Id.
type sessionPool struct {
	target    config.TargetConfig
	validator mcpValidator
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*mcpSession

	idleTimeout time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

func newSessionPool(target config.TargetConfig, validator mcpValidator, logger *slog.Logger) *sessionPool {
	p := &sessionPool{
		target:      target,
		validator:   validator,
		logger:      logger,
		sessions:    make(map[string]*mcpSession),
		idleTimeout: defaultSessionIdleTimeout,
		stopCh:      make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

func (p *sessionPool) reapLoop() {
	ticker := time.NewTicker(p.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

func (p *sessionPool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for id, sess := range p.sessions {
		sess.mu.Lock()
		idle := now.Sub(sess.lastActive)
		sess.mu.Unlock()
		if idle > p.idleTimeout {
			_ = sess.process.Terminate()
			delete(p.sessions, id)
			p.logger.Debug("reaped idle mcp session", "session_id", id)
		}
	}
}

// Close terminates every outstanding session's child process and stops the
// reaper goroutine.
func (p *sessionPool) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sess := range p.sessions {
		_ = sess.process.Terminate()
		delete(p.sessions, id)
	}
}

// getOrCreate returns the session for id, spawning a fresh child process if
// id is empty or unknown. It returns the (possibly newly minted) session id
// alongside the session.
func (p *sessionPool) getOrCreate(ctx context.Context, id string) (string, *mcpSession, error) {
	p.mu.Lock()
	if id != "" {
		if sess, ok := p.sessions[id]; ok {
			p.mu.Unlock()
			return id, sess, nil
		}
	}
	p.mu.Unlock()

	proc := child.New(p.target.Command, p.target.Args...)
	stdin, stdout, err := proc.Start(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("httpgw: spawn mcp session downstream: %w", err)
	}

	sess := &mcpSession{
		process:     proc,
		reader:      codec.NewReader(stdout),
		writer:      codec.NewWriter(stdin),
		correlation: jsonrpc.NewCorrelationTable(),
		logger:      p.logger,
		lastActive:  time.Now(),
	}

	newID := id
	if newID == "" {
		newID = uuid.NewString()
	}

	p.mu.Lock()
	p.sessions[newID] = sess
	p.mu.Unlock()

	return newID, sess, nil
}

// handle validates and forwards one JSON-RPC request through the session's
// downstream process, returning the bytes to write back to the HTTP client:
// either the (possibly rewritten) downstream response, or a blocked-request
// error when the Validation Service rejects the message outright.
//
// Unlike a naive "read the next message off the pipe and assume it's the
// reply," this pairs request and response by id through the session's own
// Correlation Table, the same component the stdio Proxy Loop uses: the id
// is put in the table before the write and the read loop keeps consuming
// downstream messages until one carries that id, logging (and discarding)
// any unsolicited message the downstream emits in between. A single HTTP
// response body can only carry the one reply this call is waiting for, so
// there is no channel to forward those intervening messages on; the
// streamable-HTTP transport does not implement server-initiated push.
func (s *mcpSession) handle(ctx context.Context, validator mcpValidator, raw []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	msg, parseErr := jsonrpc.Parse(raw, jsonrpc.ClientToServer, time.Now())
	if parseErr != nil {
		if err := s.writer.WriteMessage(raw); err != nil {
			return nil, fmt.Errorf("forward unparsed message: %w", err)
		}
		return s.reader.ReadMessage()
	}

	v := validator.ValidateRequest(ctx, msg)
	if !v.Allowed {
		return validator.CreateBlockedResponse(msg, v), nil
	}

	key, hasKey := msg.CorrelationKey()
	if hasKey {
		s.correlation.Put(key, msg)
	}

	if err := s.writer.WriteMessage(raw); err != nil {
		if hasKey {
			s.correlation.Remove(key)
		}
		return nil, fmt.Errorf("forward request to downstream: %w", err)
	}

	if !hasKey {
		// A notification carries no id and expects no reply.
		return nil, nil
	}

	for {
		respRaw, err := s.reader.ReadMessage()
		if err != nil {
			s.correlation.Remove(key)
			return nil, fmt.Errorf("read downstream response: %w", err)
		}

		respMsg, parseErr := jsonrpc.Parse(respRaw, jsonrpc.ServerToClient, time.Now())
		if parseErr != nil {
			s.correlation.Remove(key)
			return respRaw, nil
		}

		respKey, ok := respMsg.CorrelationKey()
		if !ok || respKey != key {
			// Unsolicited message interleaved ahead of our reply: validate
			// it so a blocked one is never silently swallowed, clear its
			// correlation entry if it happens to answer another in-flight
			// call, and keep waiting for the reply this call is holding the
			// HTTP connection open for.
			s.correlation.Remove(respKey)
			respVerdict := validator.ValidateResponse(ctx, respMsg)
			s.logger.Debug("mcp session: discarding unsolicited message ahead of awaited response",
				"waiting_for", key, "received", respKey, "allowed", respVerdict.Allowed)
			continue
		}

		s.correlation.Remove(key)
		respVerdict := validator.ValidateResponse(ctx, respMsg)
		if !respVerdict.Allowed {
			return validator.CreateBlockedResponse(respMsg, respVerdict), nil
		}
		return respRaw, nil
	}
}
