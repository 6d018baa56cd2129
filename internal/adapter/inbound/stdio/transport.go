// Package stdio wires the stdio-mode transport: it spawns the configured
// downstream MCP server and either runs the proxy loop over its pipes or,
// in bypass mode, connects the client directly to the child's stdio.
package stdio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/javelin-guard/gateway/internal/adapter/outbound/child"
	"github.com/javelin-guard/gateway/internal/service/proxy"
)

// Transport runs one proxy session over stdin/stdout against a spawned
// downstream MCP server.
type Transport struct {
	process *child.Process
	proxy   *proxy.Service
	bypass  bool
	logger  *slog.Logger
}

// New builds a Transport for the given downstream command. When bypass is
// true, Run skips the proxy loop entirely and connects the child directly
// to the current process's stdio.
func New(command string, args []string, proxySvc *proxy.Service, bypass bool, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		process: child.New(command, args...),
		proxy:   proxySvc,
		bypass:  bypass,
		logger:  logger,
	}
}

// Run spawns the downstream server and blocks until the session ends,
// returning the exit code the parent process should use.
func (t *Transport) Run(ctx context.Context) (int, error) {
	if t.bypass {
		return t.runBypass(ctx)
	}
	return t.runProxied(ctx)
}

// runBypass inherits stdio directly: the proxy loop is never constructed,
// per the configured bypass escape hatch.
func (t *Transport) runBypass(ctx context.Context) (int, error) {
	t.logger.Warn("bypass mode enabled: validation is disabled for this session")

	stdin, stdout, err := t.process.Start(ctx)
	if err != nil {
		return 1, fmt.Errorf("stdio: start downstream in bypass mode: %w", err)
	}

	done := make(chan error, 2)
	go func() {
		_, err := io.Copy(stdin, os.Stdin)
		_ = stdin.Close()
		done <- err
	}()
	go func() {
		_, err := io.Copy(os.Stdout, stdout)
		done <- err
	}()

	<-done
	<-done

	if err := t.process.Wait(); err != nil {
		t.logger.Debug("downstream process exited", "error", err)
	}
	return t.process.ExitCode(), nil
}

// runProxied spawns the downstream server and runs the validation proxy
// loop over its pipes until either side closes.
func (t *Transport) runProxied(ctx context.Context) (int, error) {
	serverIn, serverOut, err := t.process.Start(ctx)
	if err != nil {
		return 1, fmt.Errorf("stdio: start downstream: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := t.proxy.Run(runCtx, os.Stdin, os.Stdout, serverIn, serverOut)

	if err := t.process.Terminate(); err != nil {
		t.logger.Debug("error terminating downstream process", "error", err)
	}
	if err := t.process.Wait(); err != nil {
		t.logger.Debug("downstream process exited", "error", err)
	}

	if runErr != nil {
		return 1, runErr
	}
	return t.process.ExitCode(), nil
}
