package wallet

import (
	"encoding/json"
	"strconv"
)

// Payload is a decoded API response. Field sets differ across API revisions,
// so every accessor tolerates absent or differently typed keys.
type Payload map[string]any

// Has reports whether key is present and not null.
func (p Payload) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// String returns the value of key as a string. Numbers are formatted;
// other types yield "".
func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Int returns the value of key as an int64. Integral strings are accepted
// because some revisions send smallest-unit amounts as strings.
func (p Payload) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case float64:
		n := int64(v)
		return n, float64(n) == v
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Float returns the value of key as a float64.
func (p Payload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// FirstString returns the first non-empty string among keys.
func (p Payload) FirstString(keys ...string) string {
	for _, k := range keys {
		if s := p.String(k); s != "" {
			return s
		}
	}
	return ""
}

// SetDefault stores value under key only when the key is absent,
// so derived fields never overwrite what the backend sent.
func (p Payload) SetDefault(key string, value any) {
	if _, exists := p[key]; !exists {
		p[key] = value
	}
}
