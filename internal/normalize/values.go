package normalize

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// asList coerces v into a list: nil is empty, lists pass through, scalars become singletons.
func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{t}
	}
}

// toStrings coerces v into trimmed, non-blank strings, dropping falsy items.
func toStrings(v any) []string {
	out := []string{}
	for _, item := range asList(v) {
		if isFalsy(item) {
			continue
		}
		if s := stringify(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// isFalsy reports whether v is null, false, zero, or an empty string, list or object.
func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case float64:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// stringify renders a decoded JSON value as trimmed text.
// Lists and objects are rendered as compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any, map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return strings.TrimSpace(fmt.Sprint(t))
		}
		return string(data)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// firstText returns the first non-blank value among keys of obj.
func firstText(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || isFalsy(v) {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

// ResolveDisclaimer turns a payload's disclaimer value into text.
// nil and blank values select def; lists are space-joined.
func ResolveDisclaimer(v any, def string) string {
	switch t := v.(type) {
	case nil:
		return def
	case []any:
		parts := toStrings(t)
		if len(parts) == 0 {
			return def
		}
		return strings.Join(parts, " ")
	default:
		if s := stringify(t); s != "" {
			return s
		}
		return def
	}
}
