package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate_ShortStringUnchanged(t *testing.T) {
	s := "hello world"
	if got := Truncate(s); got != s {
		t.Errorf("Truncate(%q) = %q, want unchanged", s, got)
	}
}

func TestTruncate_ExactBoundaryUnchanged(t *testing.T) {
	s := strings.Repeat("a", maxPreviewLen)
	if got := Truncate(s); got != s {
		t.Errorf("Truncate at exactly %d chars should be unchanged", maxPreviewLen)
	}
}

func TestTruncate_LongStringSuffix(t *testing.T) {
	s := strings.Repeat("a", 200)
	got := Truncate(s)
	want := strings.Repeat("a", 128) + "… (200 chars)"
	if got != want {
		t.Errorf("Truncate = %q, want %q", got, want)
	}
}

func TestTruncate_DoesNotSplitMultiByteRune(t *testing.T) {
	// 130 snowman runes (3 bytes each in UTF-8).
	s := strings.Repeat("☃", 130)
	got := Truncate(s)

	if !strings.HasSuffix(got, "… (130 chars)") {
		t.Fatalf("Truncate = %q, want suffix with 130 chars", got)
	}
	prefix := strings.TrimSuffix(got, "… (130 chars)")
	if !utf8.ValidString(prefix) {
		t.Errorf("Truncate produced invalid UTF-8 prefix: %q", prefix)
	}
	if n := len([]rune(prefix)); n != 128 {
		t.Errorf("prefix rune count = %d, want 128", n)
	}
}

func TestValue_RedactsSensitiveKeys(t *testing.T) {
	in := map[string]interface{}{
		"Authorization": "Bearer abcdefghijklmnop",
		"nested": map[string]interface{}{
			"x-api-key": "k",
			"ok":        strings.Repeat("a", 200),
		},
	}

	out := Value(in).(map[string]interface{})

	if out["Authorization"] != redactedPlaceholder {
		t.Errorf("Authorization = %v, want redacted", out["Authorization"])
	}
	nested := out["nested"].(map[string]interface{})
	if nested["x-api-key"] != redactedPlaceholder {
		t.Errorf("nested.x-api-key = %v, want redacted", nested["x-api-key"])
	}
	want := strings.Repeat("a", 128) + "… (200 chars)"
	if nested["ok"] != want {
		t.Errorf("nested.ok = %v, want %v", nested["ok"], want)
	}
}

func TestValue_DoesNotRecurseIntoSensitiveValues(t *testing.T) {
	in := map[string]interface{}{
		"token": map[string]interface{}{"x-api-key": "should-not-be-touched-or-visited"},
	}
	out := Value(in).(map[string]interface{})
	if out["token"] != redactedPlaceholder {
		t.Errorf("token = %v, want wholesale redaction without recursion", out["token"])
	}
}

func TestValue_PreservesShape(t *testing.T) {
	in := map[string]interface{}{
		"arr":  []interface{}{1.0, "two", map[string]interface{}{"x": "y"}},
		"obj":  map[string]interface{}{"a": 1.0, "b": 2.0},
		"null": nil,
		"num":  42.0,
		"bool": true,
	}
	out := Value(in).(map[string]interface{})

	if len(out) != len(in) {
		t.Fatalf("key count = %d, want %d", len(out), len(in))
	}
	arr := out["arr"].([]interface{})
	if len(arr) != 3 {
		t.Errorf("arr length = %d, want 3", len(arr))
	}
	obj := out["obj"].(map[string]interface{})
	if len(obj) != 2 {
		t.Errorf("obj key count = %d, want 2", len(obj))
	}
}

func TestValue_Idempotent(t *testing.T) {
	in := map[string]interface{}{
		"password": "hunter2",
		"nested":   map[string]interface{}{"ok": strings.Repeat("b", 300)},
		"list":     []interface{}{"a", "b", map[string]interface{}{"secret": "x"}},
	}

	once := Value(in)
	twice := Value(once)

	if !mapsEqual(once.(map[string]interface{}), twice.(map[string]interface{})) {
		t.Errorf("Value is not idempotent:\n once = %#v\n twice = %#v", once, twice)
	}
}

func mapsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		switch vv := v.(type) {
		case map[string]interface{}:
			bvv, ok := bv.(map[string]interface{})
			if !ok || !mapsEqual(vv, bvv) {
				return false
			}
		case []interface{}:
			bvv, ok := bv.([]interface{})
			if !ok || len(bvv) != len(vv) {
				return false
			}
		default:
			if v != bv {
				return false
			}
		}
	}
	return true
}
