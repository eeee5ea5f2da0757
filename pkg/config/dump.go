package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

var secretKeyParts = []string{"password", "token", "secret", "key"}

// Redacted renders the effective configuration as YAML. Fields tagged
// yaml:"-" are omitted and data source values whose key looks like a
// credential are masked.
func (c *Config) Redacted() (string, error) {
	out := *c
	out.DataSources = make([]DataSourceConfig, len(c.DataSources))
	for i, ds := range c.DataSources {
		ds.Config = redactMap(ds.Config)
		out.DataSources[i] = ds
	}

	b, err := yaml.Marshal(&out)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(b), nil
}

func redactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSecretKey(k) {
			if s, ok := v.(string); !ok || s != "" {
				out[k] = redacted
				continue
			}
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return redactMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e)
		}
		return out
	default:
		return v
	}
}

func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	for _, part := range secretKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}
