package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/crypto"
)

// DefaultPath is the config file read by Load.
const DefaultPath = "config.yaml"

// Config holds all configuration for the query engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, tokens) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"3001"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Cache      CacheConfig      `yaml:"cache"`
	Redis      RedisConfig      `yaml:"redis"`
	Query      QueryConfig      `yaml:"query"`
	Datasource DatasourceConfig `yaml:"datasource"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Databricks DatabricksConfig `yaml:"databricks"`

	// SecretKey opens data source values sealed with the "enc:" prefix.
	SecretKey string `yaml:"-" env:"CREDENTIAL_ENCRYPTION_KEY"` // Secret - not in YAML

	// DataSources are registered at startup.
	DataSources []DataSourceConfig `yaml:"datasources"`
}

// CacheConfig selects and tunes the result cache.
type CacheConfig struct {
	// Backend is "memory", "redis" or "none" to disable caching.
	Backend           string `yaml:"backend" env:"CACHE_BACKEND" env-default:"memory"`
	DefaultTTLSeconds int    `yaml:"default_ttl" env:"CACHE_DEFAULT_TTL" env-default:"3600"`
	MaxEntries        int    `yaml:"max_entries" env:"CACHE_MAX_ENTRIES" env-default:"10000"`
}

// DefaultTTL returns DefaultTTLSeconds as a duration.
func (c *CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// RedisConfig holds Redis connection configuration for the redis cache backend.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// QueryConfig bounds query execution.
type QueryConfig struct {
	// TimeoutMs is the default per-query timeout.
	TimeoutMs      int `yaml:"timeout_ms" env:"QUERY_TIMEOUT" env-default:"30000"`
	MaxQueryLength int `yaml:"max_query_length" env:"MAX_QUERY_LENGTH" env-default:"50000"`
	MaxResultRows  int `yaml:"max_result_rows" env:"MAX_RESULT_ROWS" env-default:"10000"`
	// HealthCheckTimeoutMs bounds each data source probe.
	HealthCheckTimeoutMs int `yaml:"health_check_timeout_ms" env:"HEALTH_CHECK_TIMEOUT" env-default:"5000"`
}

// Timeout returns TimeoutMs as a duration.
func (c *QueryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// HealthCheckTimeout returns HealthCheckTimeoutMs as a duration.
func (c *QueryConfig) HealthCheckTimeout() time.Duration {
	return time.Duration(c.HealthCheckTimeoutMs) * time.Millisecond
}

// DatasourceConfig holds datasource connection management settings.
type DatasourceConfig struct {
	// MaxConnectionsPerTenant limits concurrent datasource pools per tenant.
	MaxConnectionsPerTenant int `yaml:"max_connections_per_tenant" env:"MAX_CONNECTIONS_PER_TENANT" env-default:"10"`
	// ConnectionTimeoutMs bounds pool creation and the first ping.
	ConnectionTimeoutMs int `yaml:"connection_timeout_ms" env:"CONNECTION_TIMEOUT" env-default:"10000"`
	// PoolMaxConns is the maximum number of connections per datasource pool.
	PoolMaxConns int `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	// PoolMinConns is the minimum number of connections per datasource pool.
	PoolMinConns int `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`
	// IdleSeconds closes pooled connections idle for longer.
	IdleSeconds int `yaml:"idle_seconds" env:"DATASOURCE_IDLE_SECONDS" env-default:"300"`
}

// ConnectionTimeout returns ConnectionTimeoutMs as a duration.
func (c *DatasourceConfig) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMs) * time.Millisecond
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Prefix  string `yaml:"prefix" env:"METRICS_PREFIX" env-default:"query_engine"`
}

// DatabricksConfig supplies workspace defaults for databricks data sources
// that omit them.
type DatabricksConfig struct {
	ServerHostname string `yaml:"server_hostname" env:"DATABRICKS_SERVER_HOSTNAME" env-default:""`
	HTTPPath       string `yaml:"http_path" env:"DATABRICKS_HTTP_PATH" env-default:""`
	Token          string `yaml:"-" env:"DATABRICKS_TOKEN"` // Secret - not in YAML
}

// DataSourceConfig is a statically configured data source. String values
// in Config may reference environment variables as ${NAME}, which keeps
// credentials out of the file.
type DataSourceConfig struct {
	ID          string         `yaml:"id"`
	TenantID    string         `yaml:"tenant_id"`
	Type        string         `yaml:"type"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Config      map[string]any `yaml:"config"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When config.yaml does not exist, only the environment is used.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultPath, version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		// Load config from YAML file with environment variable overrides
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.expandDataSources()
	if err := cfg.openSealedValues(); err != nil {
		return nil, err
	}
	cfg.applyDatabricksDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and the TLS pair.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.backend must be memory, redis or none, got %q", c.Cache.Backend)
	}
	if c.Cache.DefaultTTLSeconds <= 0 {
		return fmt.Errorf("cache.default_ttl must be positive")
	}
	if c.Query.TimeoutMs <= 0 {
		return fmt.Errorf("query.timeout_ms must be positive")
	}
	if c.Query.MaxQueryLength <= 0 {
		return fmt.Errorf("query.max_query_length must be positive")
	}
	if c.Query.MaxResultRows <= 0 {
		return fmt.Errorf("query.max_result_rows must be positive")
	}

	seen := make(map[string]bool, len(c.DataSources))
	for i, ds := range c.DataSources {
		if ds.ID == "" {
			return fmt.Errorf("datasources[%d]: id is required", i)
		}
		if ds.Type == "" {
			return fmt.Errorf("datasource %s: type is required", ds.ID)
		}
		key := ds.TenantID + "/" + ds.ID
		if seen[key] {
			return fmt.Errorf("datasource %s: duplicate id", ds.ID)
		}
		seen[key] = true
	}

	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	// Both must be provided together or both empty
	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// If both provided, verify files exist (actual readability checked by tls.LoadX509KeyPair at startup)
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// IsProduction reports whether the environment asks for production logging.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// ListenAddr is the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

func (c *Config) expandDataSources() {
	for i := range c.DataSources {
		if c.DataSources[i].Config == nil {
			c.DataSources[i].Config = map[string]any{}
		}
		for k, v := range c.DataSources[i].Config {
			c.DataSources[i].Config[k] = expandValue(v)
		}
	}
}

func expandValue(v any) any {
	switch x := v.(type) {
	case string:
		return os.ExpandEnv(x)
	case map[string]any:
		for k, e := range x {
			x[k] = expandValue(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = expandValue(e)
		}
		return x
	default:
		return v
	}
}

// applyDatabricksDefaults fills connection fields of databricks data
// sources from the DATABRICKS_* settings when the source leaves them unset.
// openSealedValues decrypts "enc:" values in data source configs. A sealed
// value without SecretKey is an error rather than being passed through.
func (c *Config) openSealedValues() error {
	var box *crypto.SecretBox
	for i := range c.DataSources {
		ds := &c.DataSources[i]
		if !crypto.HasSealed(ds.Config) {
			continue
		}
		if box == nil {
			if c.SecretKey == "" {
				return fmt.Errorf("datasource %s has sealed values but CREDENTIAL_ENCRYPTION_KEY is not set", ds.ID)
			}
			var err error
			if box, err = crypto.NewSecretBox(c.SecretKey); err != nil {
				return err
			}
		}
		if err := box.OpenAll(ds.Config); err != nil {
			return fmt.Errorf("datasource %s: %w", ds.ID, err)
		}
	}
	return nil
}

func (c *Config) applyDatabricksDefaults() {
	defaults := map[string]string{
		"server_hostname": c.Databricks.ServerHostname,
		"http_path":       c.Databricks.HTTPPath,
		"access_token":    c.Databricks.Token,
	}
	aliases := map[string][]string{
		"server_hostname": {"serverHostname", "hostname", "host"},
		"http_path":       {"httpPath"},
		"access_token":    {"accessToken", "token"},
	}

	for i := range c.DataSources {
		ds := &c.DataSources[i]
		if !strings.EqualFold(ds.Type, "databricks") {
			continue
		}
		for key, value := range defaults {
			if value == "" || hasAny(ds.Config, key, aliases[key]...) {
				continue
			}
			ds.Config[key] = value
		}
	}
}

func hasAny(m map[string]any, key string, aliases ...string) bool {
	for _, k := range append([]string{key}, aliases...) {
		if s, ok := m[k].(string); ok && s != "" {
			return true
		}
	}
	return false
}
