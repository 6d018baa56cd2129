// Package rules implements the local rule engine the Validation Service
// consults before delegating to the external guardrails evaluator. It is a
// deliberately simple, hard-coded substring table per method — see
// Extension for the CEL-based escape hatch that lets an operator add more
// without a rebuild.
package rules

import "strings"

// Outcome is what a rule produced: either no opinion (did not match) or a
// block with an associated confidence and human-readable reason.
type Outcome struct {
	Matched    bool
	Reason     string
	Confidence float64
}

var dangerousToolSubstrings = []string{
	"exec", "shell", "bash", "cmd", "powershell", "eval", "system",
	"subprocess", "popen", "spawn", "fork", "kill", "rm", "del", "format",
	"fdisk", "mkfs", "dd", "nc", "netcat", "telnet", "curl_exec",
	"wget_exec", "download_exec",
}

var dangerousArgumentSubstrings = []string{
	"; ", "| ", "& ", "$(", "`", "&&", "||", "../", "..\\", "rm -", "del ",
	"format ", "fdisk", "mkfs", "dd if=", "curl ", "wget ", "nc ", "netcat",
	"telnet", "ssh ", "base64", "eval", "exec", "system", "popen",
}

var pathTraversalSubstrings = []string{
	"../", "..\\", "%2e%2e", "....", "/etc/", "\\windows\\", "/proc/", "/sys/",
}

var promptInjectionSubstrings = []string{
	"ignore", "forget", "disregard", "override", "bypass", "jailbreak",
	"system:", "assistant:", "user:", "human:", "ai:", "chatgpt:",
	"\n\n", "---", "###", "```", "exec", "eval", "script",
}

// Evaluate runs the built-in table for method against params (the parsed
// JSON-RPC request params, or nil). It never blocks for a method it
// doesn't recognize — unrecognized methods always return a non-matching
// Outcome, deferring entirely to the external evaluator.
func Evaluate(method string, params map[string]interface{}) Outcome {
	switch method {
	case "tools/call":
		return evaluateToolsCall(params)
	case "resources/read":
		return evaluateResourcesRead(params)
	case "prompts/get":
		return evaluatePromptsGet(params)
	default:
		return Outcome{}
	}
}

func evaluateToolsCall(params map[string]interface{}) Outcome {
	name, _ := params["name"].(string)
	lowerName := strings.ToLower(name)
	for _, bad := range dangerousToolSubstrings {
		if strings.Contains(lowerName, bad) {
			return Outcome{
				Matched:    true,
				Reason:     toolBlockReason(name),
				Confidence: 0.9,
			}
		}
	}

	argsStr := strings.ToLower(stringifyArguments(params["arguments"]))
	for _, bad := range dangerousArgumentSubstrings {
		if strings.Contains(argsStr, bad) {
			return Outcome{
				Matched:    true,
				Reason:     "Request blocked: arguments contain a suspicious shell/command pattern",
				Confidence: 0.8,
			}
		}
	}

	return Outcome{}
}

func toolBlockReason(name string) string {
	return `Request blocked: dangerous tool name "` + name + `"`
}

func evaluateResourcesRead(params map[string]interface{}) Outcome {
	uri, _ := params["uri"].(string)
	lowerURI := strings.ToLower(uri)
	for _, bad := range pathTraversalSubstrings {
		if strings.Contains(lowerURI, bad) {
			return Outcome{
				Matched:    true,
				Reason:     `Request blocked: path traversal attempt in uri "` + uri + `"`,
				Confidence: 0.9,
			}
		}
	}
	return Outcome{}
}

func evaluatePromptsGet(params map[string]interface{}) Outcome {
	name, _ := params["name"].(string)
	lowerName := strings.ToLower(name)
	for _, bad := range promptInjectionSubstrings {
		if strings.Contains(lowerName, bad) {
			return Outcome{
				Matched:    true,
				Reason:     `Request blocked: prompt injection pattern in name "` + name + `"`,
				Confidence: 0.8,
			}
		}
	}
	return Outcome{}
}

// stringifyArguments renders params["arguments"] (any JSON value) as a flat
// string for substring scanning. It deliberately doesn't try to be a
// faithful serialization — any representation that preserves the
// substrings we scan for is sufficient, and this stays cheap.
func stringifyArguments(v interface{}) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case string:
		b.WriteString(val)
	case map[string]interface{}:
		for k, fieldVal := range val {
			b.WriteString(k)
			b.WriteByte(' ')
			writeValue(b, fieldVal)
			b.WriteByte(' ')
		}
	case []interface{}:
		for _, elem := range val {
			writeValue(b, elem)
			b.WriteByte(' ')
		}
	case nil:
		// contributes nothing
	default:
		// numbers, bools: fmt-free stringification isn't needed, they
		// never match any of the dangerous substrings above.
	}
}
