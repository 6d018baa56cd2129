// Package sanitize redacts sensitive fields and truncates long strings in
// JSON values before they reach a log line. It never touches the message
// that is actually forwarded to the client or server — only the preview
// that gets logged.
package sanitize

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxPreviewLen is the maximum number of characters kept in a sanitized
// string value before it is truncated for a log preview.
const maxPreviewLen = 128

// redactedPlaceholder replaces the value of any sensitive key.
const redactedPlaceholder = "***REDACTED***"

// sensitiveKeys is matched against the lowercased form of every object key.
// Values under a matching key are replaced wholesale, without recursing
// into them even if they are themselves objects or arrays.
var sensitiveKeys = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-javelin-apikey":    {},
	"api_key":             {},
	"apikey":              {},
	"token":               {},
	"access_token":        {},
	"refresh_token":       {},
	"password":            {},
	"secret":              {},
	"cookie":              {},
	"set-cookie":          {},
}

// Value walks v, which must be the result of unmarshaling JSON into Go's
// standard representation (map[string]interface{}, []interface{}, string,
// float64, bool, nil), and returns a sanitized copy.
//
// Shape is preserved: objects stay objects with the same key set, arrays
// stay arrays of the same length, keys are never renamed. The function is
// idempotent: Value(Value(v)) produces the same result as Value(v), since a
// redacted value is already the literal redaction string and an already
// truncated string truncates to itself.
func Value(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, fieldVal := range val {
			if isSensitiveKey(k) {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = Value(fieldVal)
		}
		return out

	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Value(elem)
		}
		return out

	case string:
		return Truncate(val)

	default:
		// Numbers, booleans, nil: cloned by value, nothing to sanitize.
		return v
	}
}

func isSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// Truncate returns s unchanged if it is at most maxPreviewLen characters.
// Otherwise it returns the first maxPreviewLen characters (never splitting a
// multi-byte codepoint) followed by "… (<n> chars)", where n is the
// original character count.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxPreviewLen {
		return s
	}

	runeCount := utf8.RuneCountInString(s)

	// A preview this function already produced is returned as is, which
	// keeps Value idempotent.
	if i := strings.LastIndex(s, "… ("); i >= 0 && strings.HasSuffix(s, " chars)") &&
		utf8.RuneCountInString(s[:i]) == maxPreviewLen {
		if _, err := strconv.Atoi(s[i+len("… (") : len(s)-len(" chars)")]); err == nil {
			return s
		}
	}

	total := 0
	cut := 0
	for i := range s {
		if total == maxPreviewLen {
			cut = i
			break
		}
		total++
	}

	var b strings.Builder
	b.WriteString(s[:cut])
	b.WriteString("… (")
	b.WriteString(strconv.Itoa(runeCount))
	b.WriteString(" chars)")
	return b.String()
}
