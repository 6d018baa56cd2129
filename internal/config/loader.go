// Package config provides configuration loading for javelin-gateway.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for javelin-gateway.yaml/.yml
// in standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("javelin-gateway")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: JAVELIN_GATEWAY_JAVELIN_API_KEY, etc.
	viper.SetEnvPrefix("JAVELIN_GATEWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a javelin-gateway config
// file with an explicit YAML extension (.yaml or .yml). This prevents
// Viper from matching the binary "javelin-gateway" (no extension) in the
// current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".javelin-gateway"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "javelin-gateway"))
		}
	} else {
		paths = append(paths, "/etc/javelin-gateway")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for
// javelin-gateway.yaml or .yml. Returns the full path of the first match,
// or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "javelin-gateway"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the config keys an operator is most likely to
// override via environment variables rather than a config file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("javelin.api_key")
	_ = viper.BindEnv("javelin.base_url")
	_ = viper.BindEnv("javelin.timeout")
	_ = viper.BindEnv("javelin.fail_open")

	_ = viper.BindEnv("behavior.cache_ttl")
	_ = viper.BindEnv("behavior.cache_max_entries")

	_ = viper.BindEnv("listen_address")
	_ = viper.BindEnv("bypass")
	_ = viper.BindEnv("log_level")

	_ = viper.BindEnv("target.command")
	// Note: target.args and rules are arrays/structs, complex to override
	// via env. Operators should use the config file for those.
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the GatewayConfig. Validates before returning.
func LoadConfig() (*GatewayConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg GatewayConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found (env vars
// only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
