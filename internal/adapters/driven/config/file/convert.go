package file

import (
	"strings"
	"time"
)

// toInt converts TOML and Go integer values.
func toInt(val any) (int, bool) {
	// TOML integers are parsed as int64
	switch v := val.(type) {
	case int64:
		return int(v), true
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// toFloat converts TOML and Go numeric values.
func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// toDuration accepts "60s"-style strings and integer seconds.
func toDuration(val any) (time.Duration, bool) {
	switch v := val.(type) {
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return d, true
	case time.Duration:
		return v, true
	default:
		if n, ok := toInt(v); ok {
			return time.Duration(n) * time.Second, true
		}
		return 0, false
	}
}

// toStringSlice converts TOML arrays, which are parsed as []any.
func toStringSlice(val any) []string {
	switch v := val.(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}

// flattenMap converts nested maps to dot-notation keys.
// E.g., {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)

	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}

	return result
}

// nestMap is the inverse of flattenMap, so the file is written as TOML
// tables instead of quoted dotted keys. A key that is also the prefix of
// another key is dropped.
func nestMap(flat map[string]any) map[string]any {
	prefixes := make(map[string]struct{})
	for key := range flat {
		for i := range len(key) {
			if key[i] == '.' {
				prefixes[key[:i]] = struct{}{}
			}
		}
	}

	root := make(map[string]any)
	for key, value := range flat {
		if _, isTable := prefixes[key]; isTable {
			continue
		}
		parts := strings.Split(key, ".")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return root
}
