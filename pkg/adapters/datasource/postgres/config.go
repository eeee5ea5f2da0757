package postgres

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/config"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
	// ConnectTimeout in seconds; zero leaves the libpq default.
	ConnectTimeout int
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

func (c *Config) DataSourceType() models.DataSourceType {
	return models.DataSourcePostgreSQL
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	switch c.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid ssl_mode %q", c.SSLMode)
	}
	return nil
}

// ConnectionString builds a PostgreSQL URL. User, password and database are
// escaped per URL component, so spaces and @, /, # or ? survive parsing.
// When running in Docker, localhost resolves to host.docker.internal.
func (c *Config) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}
	host := config.ResolveHostForDocker(c.Host)

	query := url.Values{}
	query.Set("sslmode", sslMode)
	if c.ConnectTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(c.ConnectTimeout))
	}

	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// Fingerprint changes whenever the connection string does.
func (c *Config) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.ConnectionString()))
	return hex.EncodeToString(sum[:])
}

// FromMap creates a Config from a generic config map.
func FromMap(cfgMap map[string]any) (*Config, error) {
	cfg := &Config{
		Port:    DefaultPort(),
		SSLMode: DefaultSSLMode(),
	}

	var err error
	if cfg.Host, err = datasource.RequireString(cfgMap, "host"); err != nil {
		return nil, err
	}
	if port, ok := datasource.MapInt(cfgMap, "port"); ok {
		cfg.Port = port
	}
	if cfg.User, err = datasource.RequireString(cfgMap, "user"); err != nil {
		if user, ok := datasource.MapString(cfgMap, "username"); ok {
			cfg.User = user
		} else {
			return nil, err
		}
	}
	if password, ok := datasource.MapString(cfgMap, "password"); ok {
		cfg.Password = password
	}
	if database, ok := datasource.MapString(cfgMap, "database"); ok {
		cfg.Database = database
	} else if name, ok := datasource.MapString(cfgMap, "name"); ok {
		// Support legacy "name" field
		cfg.Database = name
	} else {
		return nil, fmt.Errorf("database is required")
	}
	if sslMode, ok := datasource.MapString(cfgMap, "ssl_mode"); ok {
		cfg.SSLMode = sslMode
	}
	if timeout, ok := datasource.MapInt(cfgMap, "connect_timeout"); ok {
		cfg.ConnectTimeout = timeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var _ models.BackendConfig = (*Config)(nil)
