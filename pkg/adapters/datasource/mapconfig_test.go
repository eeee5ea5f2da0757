package datasource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMapHelpers(t *testing.T) {
	cfg := map[string]any{
		"host":      "db.internal",
		"empty":     "",
		"port_json": float64(5432),
		"port_yaml": 5432,
		"port_str":  "5432",
		"ro":        true,
		"ro_str":    "false",
		"timeout":   "30s",
		"timeout_n": 1500,
		"exts":      []any{"httpfs", "json", 3},
		"settings":  map[string]any{"threads": 4, "memory_limit": "1GB"},
	}

	host, ok := MapString(cfg, "host")
	assert.True(t, ok)
	assert.Equal(t, "db.internal", host)
	_, ok = MapString(cfg, "empty")
	assert.False(t, ok)

	_, err := RequireString(cfg, "user")
	assert.EqualError(t, err, "user is required")

	for _, key := range []string{"port_json", "port_yaml", "port_str"} {
		n, ok := MapInt(cfg, key)
		assert.True(t, ok, key)
		assert.Equal(t, 5432, n, key)
	}

	b, ok := MapBool(cfg, "ro")
	assert.True(t, ok && b)
	b, ok = MapBool(cfg, "ro_str")
	assert.True(t, ok)
	assert.False(t, b)

	d, ok := MapDuration(cfg, "timeout")
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)
	d, ok = MapDuration(cfg, "timeout_n")
	assert.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)

	assert.Equal(t, []string{"httpfs", "json"}, MapStringSlice(cfg, "exts"))
	assert.Equal(t, map[string]string{"threads": "4", "memory_limit": "1GB"}, MapStringMap(cfg, "settings"))
}
