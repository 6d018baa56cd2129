package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/javelin-guard/gateway/internal/adapter/inbound/stdio"
	"github.com/javelin-guard/gateway/internal/config"
	"github.com/javelin-guard/gateway/internal/service/proxy"
)

// runStdio is the root command's action: load configuration, and either run
// a self-check or spawn the configured downstream MCP server and run the
// bidirectional proxy loop over its stdio.
func runStdio(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		if selfCheck {
			fmt.Printf("javelin-gateway %s\n", Version)
			fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
			os.Exit(1)
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	if selfCheck {
		fmt.Printf("javelin-gateway %s\n", Version)
		fmt.Println("config OK")
		return nil
	}

	// "-- command args..." overrides the configured target.
	if len(args) > 0 {
		cfg.Target.Command = args[0]
		cfg.Target.Args = args[1:]
	}

	logger := newLogger(cfg.LogLevel)

	validator, err := buildValidator(cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return fmt.Errorf("failed to build validator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	proxySvc := proxy.New(validator, logger)
	transport := stdio.New(cfg.Target.Command, cfg.Target.Args, proxySvc, cfg.Bypass, logger)

	logger.Info("javelin-gateway starting",
		"version", Version,
		"mode", "stdio",
		"target", cfg.Target.Command,
		"test_mode", cfg.IsTestMode(),
		"bypass", cfg.Bypass,
	)

	exitCode, runErr := transport.Run(ctx)
	if runErr != nil {
		logger.Error("proxy loop exited with error", "error", runErr)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}
