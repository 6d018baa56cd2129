package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/javelin-guard/gateway/internal/adapter/outbound/guardrails"
	"github.com/javelin-guard/gateway/internal/config"
	"github.com/javelin-guard/gateway/internal/domain/rules"
	"github.com/javelin-guard/gateway/internal/service/validation"
)

// buildValidator wires the Validation Service from a loaded configuration:
// the CEL rule extension (if any operator rules are configured), the
// guardrails evaluator client, and the test-mode/fail-open policy. Shared
// between stdio-proxy mode and HTTP gateway mode so both transports run the
// same decision pipeline.
func buildValidator(cfg *config.GatewayConfig, reg prometheus.Registerer, logger *slog.Logger) (*validation.Service, error) {
	extension, err := buildExtension(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.Javelin.Timeout)
	if err != nil {
		timeout = 5 * time.Second
		logger.Warn("invalid javelin.timeout, using default", "value", cfg.Javelin.Timeout, "default", timeout)
	}

	cacheTTL, err := time.ParseDuration(cfg.Behavior.CacheTTL)
	if err != nil {
		cacheTTL = 60 * time.Second
		logger.Warn("invalid behavior.cache_ttl, using default", "value", cfg.Behavior.CacheTTL, "default", cacheTTL)
	}

	testMode := cfg.IsTestMode()

	guardrailsClient := guardrails.NewClient(guardrails.Config{
		BaseURL:         cfg.Javelin.BaseURL,
		APIKey:          cfg.Javelin.APIKey,
		Timeout:         timeout,
		CacheTTL:        cacheTTL,
		CacheMaxEntries: cfg.Behavior.CacheMaxEntries,
		Metrics:         guardrails.NewMetrics(reg),
	})

	return validation.New(guardrailsClient, extension, testMode, cfg.Javelin.FailOpen), nil
}

// buildExtension compiles the operator-supplied CEL rule table. Returns a
// nil extension (no error) when no rules are configured.
func buildExtension(ruleCfgs []config.RuleConfig) (*rules.Extension, error) {
	if len(ruleCfgs) == 0 {
		return nil, nil
	}

	celRules := make([]rules.CELRule, 0, len(ruleCfgs))
	for _, r := range ruleCfgs {
		celRules = append(celRules, rules.CELRule{
			Name:       r.Name,
			Expression: r.Expression,
			Confidence: r.Confidence,
			Reason:     r.Reason,
		})
	}
	return rules.NewExtension(celRules)
}

// newLogger builds the gateway's stderr-bound structured logger. stdout is
// reserved for the MCP stream in stdio-proxy mode.
func newLogger(levelName string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(levelName),
	}))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
