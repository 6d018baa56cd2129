// Package cmd provides the CLI commands for javelin-gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/javelin-guard/gateway/internal/config"
)

var cfgFile string
var selfCheck bool

var rootCmd = &cobra.Command{
	Use:   "javelin-gateway -- <command> [args...]",
	Short: "javelin-gateway - MCP security gateway",
	Long: `javelin-gateway is a security proxy for Model Context Protocol (MCP) servers.

It inspects JSON-RPC traffic between an MCP client and a downstream MCP
server, consulting the Javelin Guardrails evaluator and a local rule engine
to forward, block, or rewrite each message.

Quick start:
  1. Create a config file: javelin-gateway.yaml
  2. Run: javelin-gateway -- npx @modelcontextprotocol/server-filesystem /tmp

Configuration:
  Config is loaded from javelin-gateway.yaml in the current directory,
  $HOME/.javelin-gateway/, or /etc/javelin-gateway/.

  Environment variables can override config values with the
  JAVELIN_GATEWAY_ prefix. Example: JAVELIN_GATEWAY_LISTEN_ADDRESS=:9090

Commands:
  (default)   Run the stdio proxy, spawning the configured or given target
  serve       Run the HTTP gateway façade
  version     Print version information`,
	RunE: runStdio,
	Args: cobra.ArbitraryArgs,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./javelin-gateway.yaml)")
	rootCmd.Flags().BoolVar(&selfCheck, "self-check", false, "validate configuration and exit without starting a transport")
}

func initConfig() {
	config.InitViper(cfgFile)
}
