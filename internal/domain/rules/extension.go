package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// evalTimeout bounds a single CEL evaluation so a pathological expression
// can't stall the validation pipeline.
const evalTimeout = 250 * time.Millisecond

// CELRule is an operator-supplied rule, evaluated after the built-in table
// and before guardrails delegation. A CELRule can only add a block; it
// cannot turn a built-in block into an allow.
type CELRule struct {
	Name       string
	Expression string
	Confidence float64
	Reason     string
}

// Extension compiles and evaluates a set of CELRules against method/params.
type Extension struct {
	env      *cel.Env
	compiled []compiledRule
}

type compiledRule struct {
	rule CELRule
	prg  cel.Program
}

// NewExtension builds the CEL environment exposing "method" (string) and
// "params" (a dynamic map) and compiles every rule up front, so a bad
// expression is caught at startup rather than on the first request.
func NewExtension(ruleSet []CELRule) (*Extension, error) {
	env, err := cel.NewEnv(
		cel.Variable("method", cel.StringType),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("rules: failed to build CEL environment: %w", err)
	}

	ext := &Extension{env: env}
	for _, r := range ruleSet {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rules: rule %q failed to compile: %w", r.Name, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rules: rule %q failed to build program: %w", r.Name, err)
		}
		ext.compiled = append(ext.compiled, compiledRule{rule: r, prg: prg})
	}
	return ext, nil
}

// Evaluate runs every compiled rule in order and returns the first match.
// A rule that errors at evaluation time (e.g. a nil map field it didn't
// expect) is treated as a non-match rather than failing the whole pipeline
// closed — an operator-authored rule misbehaving should not itself become
// an outage.
func (e *Extension) Evaluate(method string, params map[string]interface{}) Outcome {
	if e == nil || len(e.compiled) == 0 {
		return Outcome{}
	}

	activation := map[string]interface{}{
		"method": method,
		"params": normalizeParams(params),
	}

	for _, cr := range e.compiled {
		ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
		result, _, err := cr.prg.ContextEval(ctx, activation)
		cancel()
		if err != nil {
			continue
		}
		matched, ok := result.Value().(bool)
		if !ok || !matched {
			continue
		}
		return Outcome{
			Matched:    true,
			Reason:     cr.rule.Reason,
			Confidence: cr.rule.Confidence,
		}
	}
	return Outcome{}
}

// normalizeParams guarantees CEL always sees a non-nil map, since
// cel.MapType rejects a nil interface in its activation.
func normalizeParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return map[string]interface{}{}
	}
	return params
}
