// Package config provides configuration types for the Javelin MCP Guard
// Gateway: the evaluator connection, cache sizing, fail policy, listen
// address, and the operator-extensible CEL rule table.
package config

// GatewayConfig is the top-level configuration for javelin-gateway.
type GatewayConfig struct {
	// Javelin configures the connection to the external Guardrails
	// evaluator.
	Javelin JavelinConfig `yaml:"javelin" mapstructure:"javelin"`

	// Behavior configures the verdict cache.
	Behavior BehaviorConfig `yaml:"behavior" mapstructure:"behavior"`

	// ListenAddress is the HTTP gateway's listen address (e.g.
	// "127.0.0.1:8080"), used by the `serve` subcommand only.
	ListenAddress string `yaml:"listen_address" mapstructure:"listen_address" validate:"omitempty,hostname_port"`

	// Bypass disables the proxy loop entirely: the child process inherits
	// stdio directly and the parent exits with the child's exit code.
	Bypass bool `yaml:"bypass" mapstructure:"bypass"`

	// LogLevel sets the minimum slog level ("debug", "info", "warn", "error").
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// Target is the stdio-mode downstream MCP server to spawn.
	Target TargetConfig `yaml:"target" mapstructure:"target"`

	// Rules is the operator-supplied CEL rule table layered on top of the
	// built-in substring rule engine.
	Rules []RuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`
}

// JavelinConfig configures the Guardrails evaluator connection.
type JavelinConfig struct {
	// APIKey authenticates to the evaluator. The literal value "test-mode"
	// is a sentinel: validation bypasses the evaluator entirely and
	// approves every message. Required for every other value, including
	// empty — a gateway not running in test mode must not silently POST to
	// the evaluator with no credential.
	APIKey string `yaml:"api_key" mapstructure:"api_key" validate:"required_unless=APIKey test-mode"`

	// BaseURL is the evaluator's root, e.g. "https://guardrails.example.com".
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`

	// Timeout bounds every evaluator HTTP call (e.g. "5s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`

	// FailOpen controls what happens when the evaluator is unreachable:
	// true forwards the message anyway, false blocks it.
	FailOpen bool `yaml:"fail_open" mapstructure:"fail_open"`
}

// BehaviorConfig configures the verdict cache.
type BehaviorConfig struct {
	// CacheTTL is how long a cached verdict stays valid (e.g. "60s").
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"omitempty"`

	// CacheMaxEntries bounds the cache's size; entries beyond this are
	// evicted least-recently-used.
	CacheMaxEntries int `yaml:"cache_max_entries" mapstructure:"cache_max_entries" validate:"omitempty,min=1"`
}

// TargetConfig configures the downstream MCP server spawned in stdio mode.
type TargetConfig struct {
	// Command is the executable to spawn.
	Command string `yaml:"command" mapstructure:"command"`

	// Args are the arguments passed to Command.
	Args []string `yaml:"args" mapstructure:"args"`
}

// RuleConfig is one operator-supplied CEL rule, evaluated against `method`
// and `params` after the built-in substring table and before the sentinel
// bypass. It can only add a block, never override a built-in allow.
type RuleConfig struct {
	Name       string  `yaml:"name" mapstructure:"name" validate:"required"`
	Expression string  `yaml:"expression" mapstructure:"expression" validate:"required"`
	Confidence float64 `yaml:"confidence" mapstructure:"confidence" validate:"omitempty,min=0,max=1"`
	Reason     string  `yaml:"reason" mapstructure:"reason"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *GatewayConfig) SetDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Javelin.Timeout == "" {
		c.Javelin.Timeout = "5s"
	}
	if c.Behavior.CacheTTL == "" {
		c.Behavior.CacheTTL = "60s"
	}
	if c.Behavior.CacheMaxEntries == 0 {
		c.Behavior.CacheMaxEntries = 10000
	}
}

// IsTestMode reports whether the configured api-key is the "test-mode"
// sentinel that bypasses the external evaluator.
func (c *GatewayConfig) IsTestMode() bool {
	return c.Javelin.APIKey == "test-mode"
}
