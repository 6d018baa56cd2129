// Command javelin-gateway is the MCP security gateway: a stdio proxy and
// HTTP façade that validate JSON-RPC traffic between an MCP client and a
// downstream MCP server against the Javelin Guardrails evaluator.
package main

import "github.com/javelin-guard/gateway/cmd/javelin-gateway/cmd"

func main() {
	cmd.Execute()
}
