package guardrails

import "testing"

func TestFingerprint_StableAcrossKeyOrder(t *testing.T) {
	a := Fingerprint("tools/call", map[string]interface{}{
		"name":      "read_file",
		"arguments": map[string]interface{}{"path": "a.txt", "mode": "r"},
	})
	b := Fingerprint("tools/call", map[string]interface{}{
		"arguments": map[string]interface{}{"mode": "r", "path": "a.txt"},
		"name":      "read_file",
	})
	if a != b {
		t.Errorf("fingerprint changed with key order: %d != %d", a, b)
	}
}

func TestFingerprint_DifferentValuesDiffer(t *testing.T) {
	a := Fingerprint("tools/call", map[string]interface{}{"name": "read_file"})
	b := Fingerprint("tools/call", map[string]interface{}{"name": "write_file"})
	if a == b {
		t.Error("expected different params to produce different fingerprints")
	}
}

func TestFingerprint_DifferentMethodsDiffer(t *testing.T) {
	params := map[string]interface{}{"name": "read_file"}
	a := Fingerprint("tools/call", params)
	b := Fingerprint("resources/read", params)
	if a == b {
		t.Error("expected different methods to produce different fingerprints")
	}
}

func TestFingerprint_NilParamsStable(t *testing.T) {
	a := Fingerprint("ping", nil)
	b := Fingerprint("ping", nil)
	if a != b {
		t.Error("expected nil params to hash stably")
	}
}

func TestFingerprint_NestedSliceKeyOrderInsensitive(t *testing.T) {
	a := Fingerprint("tools/call", map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"a": 1, "b": 2},
			map[string]interface{}{"c": 3, "d": 4},
		},
	})
	b := Fingerprint("tools/call", map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"b": 2, "a": 1},
			map[string]interface{}{"d": 4, "c": 3},
		},
	})
	if a != b {
		t.Error("expected nested map key order within slices to not affect fingerprint")
	}
}
