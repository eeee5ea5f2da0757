package config

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestRedacted(t *testing.T) {
	cfg := &Config{
		Port:      "3001",
		SecretKey: "master",
		Redis:     RedisConfig{Host: "cache", Password: "redis-pw"},
		DataSources: []DataSourceConfig{{
			ID:   "pg",
			Type: "postgresql",
			Config: map[string]any{
				"host":     "db.internal",
				"password": "hunter2",
				"auth": map[string]any{
					"access_token": "dapi-123",
				},
				"key_file": "",
			},
		}},
	}

	out, err := cfg.Redacted()
	if err != nil {
		t.Fatalf("Redacted: %v", err)
	}

	for _, secret := range []string{"hunter2", "dapi-123", "redis-pw", "master"} {
		if strings.Contains(out, secret) {
			t.Errorf("dump leaks %q:\n%s", secret, out)
		}
	}

	var parsed struct {
		DataSources []struct {
			Config map[string]any `yaml:"config"`
		} `yaml:"datasources"`
	}
	if err := yaml.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("dump is not valid YAML: %v", err)
	}
	got := parsed.DataSources[0].Config
	if got["host"] != "db.internal" {
		t.Errorf("expected host to survive, got %v", got["host"])
	}
	if got["password"] != redacted {
		t.Errorf("expected password redacted, got %v", got["password"])
	}
	if got["key_file"] != "" {
		t.Errorf("expected empty key_file to stay empty, got %v", got["key_file"])
	}

	if cfg.DataSources[0].Config["password"] != "hunter2" {
		t.Error("Redacted must not modify the original config")
	}
}
