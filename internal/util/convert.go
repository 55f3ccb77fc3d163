package util

import (
	"encoding/json"
	"math"
)

// StringField returns m[key] when it is a string.
func StringField(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// BoolField returns m[key] when it is a bool.
func BoolField(m map[string]any, key string) (bool, bool) {
	b, ok := m[key].(bool)
	return b, ok
}

// Int64Field returns m[key] coerced to an int64.
//
// Records are decoded with json.Decoder.UseNumber(), so numbers arrive as
// json.Number. Fractional or exponent forms are truncated.
func Int64Field(m map[string]any, key string) (int64, bool) {
	return ToInt64(m[key])
}

// ObjectField returns m[key] when it is a nested JSON object.
func ObjectField(m map[string]any, key string) (map[string]any, bool) {
	o, ok := m[key].(map[string]any)
	return o, ok
}

// ToInt64 attempts to coerce v into an int64.
func ToInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		f, err := x.Float64()
		if err != nil || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}
