package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/javelin-guard/gateway/internal/adapter/inbound/httpgw"
	"github.com/javelin-guard/gateway/internal/adapter/outbound/license"
	"github.com/javelin-guard/gateway/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway façade",
	Long: `Serve runs javelin-gateway's HTTP surface: health, license status,
one-shot validation, and the streamable-HTTP MCP transport, all backed by
the same decision pipeline as the stdio proxy.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	reg := prometheus.DefaultRegisterer
	validator, err := buildValidator(cfg, reg, logger)
	if err != nil {
		return fmt.Errorf("failed to build validator: %w", err)
	}

	handler := httpgw.New(validator, license.NewStub(), cfg.Target, httpgw.NewMetrics(reg), logger)
	defer handler.Close()

	server := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: handler,
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("javelin-gateway starting",
			"version", Version,
			"mode", "serve",
			"addr", cfg.ListenAddress,
			"test_mode", cfg.IsTestMode(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
