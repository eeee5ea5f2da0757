package databricks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"server_hostname": "adb-123.azuredatabricks.net",
		"http_path":       "/sql/1.0/warehouses/abc",
		"access_token":    "dapi123",
		"catalog":         "main",
		"schema":          "sales",
		"timeout":         "2m",
	})
	require.NoError(t, err)

	assert.Equal(t, "adb-123.azuredatabricks.net", cfg.ServerHostname)
	assert.Equal(t, 443, cfg.Port)
	assert.Equal(t, "/sql/1.0/warehouses/abc", cfg.HTTPPath)
	assert.Equal(t, "dapi123", cfg.AccessToken)
	assert.Equal(t, "main", cfg.Catalog)
	assert.Equal(t, "sales", cfg.Schema)
	assert.Equal(t, DefaultFetchSize(), cfg.FetchSize)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
}

func TestFromMap_CamelCaseKeys(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"serverHostname": "host",
		"httpPath":       "/path",
		"accessToken":    "tok",
		"port":           float64(8443),
	})
	require.NoError(t, err)
	assert.Equal(t, "host", cfg.ServerHostname)
	assert.Equal(t, "/path", cfg.HTTPPath)
	assert.Equal(t, "tok", cfg.AccessToken)
	assert.Equal(t, 8443, cfg.Port)
}

func TestFromMap_Required(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		errMsg string
	}{
		{"missing host", map[string]any{"http_path": "/p", "access_token": "t"}, "server_hostname is required"},
		{"missing path", map[string]any{"server_hostname": "h", "access_token": "t"}, "http_path is required"},
		{"missing token", map[string]any{"server_hostname": "h", "http_path": "/p"}, "access_token is required"},
		{"bad port", map[string]any{"server_hostname": "h", "http_path": "/p", "access_token": "t", "port": 0}, "invalid port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_FingerprintHidesToken(t *testing.T) {
	a := &Config{ServerHostname: "h", Port: 443, HTTPPath: "/p", AccessToken: "dapi-secret"}
	b := &Config{ServerHostname: "h", Port: 443, HTTPPath: "/p", AccessToken: "dapi-rotated"}

	assert.NotContains(t, a.Fingerprint(), "dapi-secret")
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
