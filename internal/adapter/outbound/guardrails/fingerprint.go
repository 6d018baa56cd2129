// Package guardrails implements the outbound client to the external policy
// evaluator ("Javelin Guardrails"): request fingerprinting, a bounded
// verdict cache, a circuit breaker around the evaluator call, and a health
// probe.
package guardrails

import (
	"encoding/json"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint computes a stable cache key over the fields a verdict depends
// on: method and params. It is insensitive to JSON key ordering and
// whitespace because it re-marshals the canonicalized value rather than
// hashing the original bytes — encoding/json already sorts map keys
// lexicographically, so two semantically identical payloads with different
// key order or formatting produce the same fingerprint.
func Fingerprint(method string, params map[string]interface{}) uint64 {
	canonical, _ := json.Marshal(canonicalEnvelope{
		Method: method,
		Params: canonicalize(params),
	})
	return xxhash.Sum64(canonical)
}

type canonicalEnvelope struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// canonicalize recursively rebuilds v so that map keys are marshaled in a
// deterministic order. encoding/json already sorts map[string]X keys, so
// this mostly just needs to recurse into nested maps/slices to make sure
// every level benefits, not only the top one.
func canonicalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(val))
		for _, k := range keys {
			out[k] = canonicalize(val[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = canonicalize(elem)
		}
		return out
	default:
		return val
	}
}
