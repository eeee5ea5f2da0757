package mysql

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":            "db.internal",
		"port":            float64(3307),
		"user":            "reporter",
		"password":        "p@ss:word",
		"database":        "shop",
		"tls":             false,
		"connect_timeout": "3s",
	})
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 3307, cfg.Port)
	assert.Equal(t, "reporter", cfg.User)
	assert.Equal(t, "shop", cfg.Database)
	assert.Equal(t, "false", cfg.TLS)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
}

func TestFromMap_Defaults(t *testing.T) {
	cfg, err := FromMap(map[string]any{"host": "h", "username": "u", "database": "d"})
	require.NoError(t, err)
	assert.Equal(t, DefaultPort(), cfg.Port)
	assert.Equal(t, DefaultTLS(), cfg.TLS)
	assert.Equal(t, "u", cfg.User)
}

func TestFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		errMsg string
	}{
		{"no host", map[string]any{"user": "u", "database": "d"}, "host is required"},
		{"no user", map[string]any{"host": "h", "database": "d"}, "user is required"},
		{"no database", map[string]any{"host": "h", "user": "u"}, "database is required"},
		{"bad tls", map[string]any{"host": "h", "user": "u", "database": "d", "tls": "sometimes"}, "invalid tls mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// The DSN produced for the driver must parse back to the same credentials,
// whatever characters the password contains.
func TestDriverConfig_RoundTrip(t *testing.T) {
	cfg := &Config{Host: "db.internal", Port: 3306, User: "app", Password: "p@ss/w:rd?", Database: "shop", TLS: "false"}

	parsed, err := mysql.ParseDSN(cfg.DriverConfig().FormatDSN())
	require.NoError(t, err)

	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, "p@ss/w:rd?", parsed.Passwd)
	assert.Equal(t, "db.internal:3306", parsed.Addr)
	assert.Equal(t, "shop", parsed.DBName)
	assert.True(t, parsed.ParseTime)
}

func TestConfig_Fingerprint(t *testing.T) {
	a := &Config{Host: "h", Port: 3306, User: "u", Password: "one", Database: "d", TLS: "false"}
	b := *a
	b.Password = "two"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.NotContains(t, a.Fingerprint(), "one")
}
