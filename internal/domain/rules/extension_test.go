package rules

import "testing"

func TestExtension_BlocksOnMatch(t *testing.T) {
	ext, err := NewExtension([]CELRule{
		{
			Name:       "no-admin-tools",
			Expression: `method == "tools/call" && params.name == "admin_panel"`,
			Confidence: 0.95,
			Reason:     "admin tools disabled by operator rule",
		},
	})
	if err != nil {
		t.Fatalf("NewExtension: %v", err)
	}

	out := ext.Evaluate("tools/call", map[string]interface{}{"name": "admin_panel"})
	if !out.Matched {
		t.Fatal("expected a match")
	}
	if out.Reason != "admin tools disabled by operator rule" {
		t.Errorf("Reason = %q", out.Reason)
	}
}

func TestExtension_NoMatchPassesThrough(t *testing.T) {
	ext, err := NewExtension([]CELRule{
		{Name: "never", Expression: `method == "nonexistent/method"`},
	})
	if err != nil {
		t.Fatalf("NewExtension: %v", err)
	}
	out := ext.Evaluate("tools/call", map[string]interface{}{"name": "read_file"})
	if out.Matched {
		t.Errorf("unexpected match: %+v", out)
	}
}

func TestExtension_EmptyRuleSetNeverMatches(t *testing.T) {
	ext, err := NewExtension(nil)
	if err != nil {
		t.Fatalf("NewExtension: %v", err)
	}
	out := ext.Evaluate("tools/call", map[string]interface{}{"name": "anything"})
	if out.Matched {
		t.Error("empty rule set should never match")
	}
}

func TestExtension_NilExtensionIsSafe(t *testing.T) {
	var ext *Extension
	out := ext.Evaluate("tools/call", nil)
	if out.Matched {
		t.Error("nil *Extension should never match")
	}
}

func TestNewExtension_RejectsBadExpression(t *testing.T) {
	_, err := NewExtension([]CELRule{
		{Name: "broken", Expression: `method ===`},
	})
	if err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestExtension_NilParamsNormalized(t *testing.T) {
	ext, err := NewExtension([]CELRule{
		{Name: "size", Expression: `size(params) == 0`, Reason: "empty params"},
	})
	if err != nil {
		t.Fatalf("NewExtension: %v", err)
	}
	out := ext.Evaluate("ping", nil)
	if !out.Matched {
		t.Error("expected nil params to normalize to an empty map")
	}
}
