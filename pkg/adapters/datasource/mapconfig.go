package datasource

import (
	"fmt"
	"strconv"
	"time"
)

// Helpers for adapters' FromMap functions. JSON numbers decode as float64 and
// YAML numbers as int, so both are accepted.

// MapString returns config[key] when it is a non-empty string.
func MapString(config map[string]any, key string) (string, bool) {
	s, ok := config[key].(string)
	return s, ok && s != ""
}

// RequireString returns config[key] or a "<key> is required" error.
func RequireString(config map[string]any, key string) (string, error) {
	if s, ok := MapString(config, key); ok {
		return s, nil
	}
	return "", fmt.Errorf("%s is required", key)
}

// MapInt reads an integer from int, int64, float64 or numeric string values.
func MapInt(config map[string]any, key string) (int, bool) {
	switch v := config[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// MapBool reads a bool from bool or "true"/"false" strings.
func MapBool(config map[string]any, key string) (bool, bool) {
	switch v := config[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	}
	return false, false
}

// MapDuration reads a duration from a Go duration string or a number of milliseconds.
func MapDuration(config map[string]any, key string) (time.Duration, bool) {
	switch v := config[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	case int, int64, float64:
		ms, _ := MapInt(config, key)
		return time.Duration(ms) * time.Millisecond, true
	}
	return 0, false
}

// MapStringSlice reads a list of strings.
func MapStringSlice(config map[string]any, key string) []string {
	switch v := config[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MapStringMap reads a map of string settings; non-string values are formatted.
func MapStringMap(config map[string]any, key string) map[string]string {
	switch v := config[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = fmt.Sprint(item)
		}
		return out
	}
	return nil
}
