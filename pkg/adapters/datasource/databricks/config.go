package databricks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// Config contains Databricks SQL warehouse connection options.
type Config struct {
	ServerHostname string
	Port           int
	HTTPPath       string
	AccessToken    string
	Catalog        string
	Schema         string
	// FetchSize is the number of rows the driver requests per round trip.
	FetchSize int
	// Timeout bounds each statement server side; zero leaves the driver default.
	Timeout time.Duration
}

// DefaultPort returns the default Databricks HTTPS port.
func DefaultPort() int {
	return 443
}

// DefaultFetchSize returns the default driver fetch size.
func DefaultFetchSize() int {
	return 10000
}

func (c *Config) DataSourceType() models.DataSourceType {
	return models.DataSourceDatabricks
}

func (c *Config) Validate() error {
	if c.ServerHostname == "" {
		return fmt.Errorf("server_hostname is required")
	}
	if c.HTTPPath == "" {
		return fmt.Errorf("http_path is required")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Fingerprint identifies the warehouse and credentials without exposing the token.
func (c *Config) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.AccessToken))
	return fmt.Sprintf("%s:%d%s|%s.%s|%s", c.ServerHostname, c.Port, c.HTTPPath,
		c.Catalog, c.Schema, hex.EncodeToString(sum[:8]))
}

// FromMap creates a Config from a generic config map. Both snake_case and the
// camelCase keys used by Databricks client configs are accepted.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:      DefaultPort(),
		FetchSize: DefaultFetchSize(),
	}

	cfg.ServerHostname = firstString(config, "server_hostname", "serverHostname", "hostname", "host")
	cfg.HTTPPath = firstString(config, "http_path", "httpPath")
	cfg.AccessToken = firstString(config, "access_token", "accessToken", "token")
	cfg.Catalog = firstString(config, "catalog")
	cfg.Schema = firstString(config, "schema")

	if port, ok := datasource.MapInt(config, "port"); ok {
		cfg.Port = port
	}
	if n, ok := datasource.MapInt(config, "fetch_size"); ok && n > 0 {
		cfg.FetchSize = n
	}
	if d, ok := datasource.MapDuration(config, "timeout"); ok {
		cfg.Timeout = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstString(config map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := datasource.MapString(config, k); ok {
			return s
		}
	}
	return ""
}

var _ models.BackendConfig = (*Config)(nil)
