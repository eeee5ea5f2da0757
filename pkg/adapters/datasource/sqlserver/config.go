package sqlserver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/config"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// Authentication methods.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is AuthSQL or AuthServicePrincipal.
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

func (c *Config) DataSourceType() models.DataSourceType {
	return models.DataSourceSQLServer
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthServicePrincipal:
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}

	return nil
}

// DriverName is "azuresql" for Azure AD authentication and "sqlserver" otherwise.
func (c *Config) DriverName() string {
	if c.AuthMethod == AuthServicePrincipal {
		return "azuresql"
	}
	return "sqlserver"
}

// ConnectionString builds a sqlserver:// URL for the configured auth method.
func (c *Config) ConnectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)
	query.Add("encrypt", strconv.FormatBool(c.Encrypt))
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(c.ConnectionTimeout))
	}

	host := config.ResolveHostForDocker(c.Host)
	if c.AuthMethod == AuthServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", c.ClientID+"@"+c.TenantID)
		query.Add("password", c.ClientSecret)
		return fmt.Sprintf("sqlserver://%s:%d?%s", host, c.Port, query.Encode())
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     fmt.Sprintf("%s:%d", host, c.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// Fingerprint changes whenever the connection string does.
func (c *Config) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.DriverName() + "|" + c.ConnectionString()))
	return hex.EncodeToString(sum[:])
}

// FromMap creates a Config from a generic config map and auto-detects auth method.
func FromMap(cfgMap map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort(),
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
	}

	var err error
	if cfg.Host, err = datasource.RequireString(cfgMap, "host"); err != nil {
		return nil, err
	}
	if port, ok := datasource.MapInt(cfgMap, "port"); ok {
		cfg.Port = port
	}
	if database, ok := datasource.MapString(cfgMap, "database"); ok {
		cfg.Database = database
	} else if name, ok := datasource.MapString(cfgMap, "name"); ok {
		// Support legacy "name" field
		cfg.Database = name
	}

	// Support string values: "true", "false", "strict"
	if encrypt, ok := datasource.MapBool(cfgMap, "encrypt"); ok {
		cfg.Encrypt = encrypt
	} else if encrypt, ok := datasource.MapString(cfgMap, "encrypt"); ok {
		cfg.Encrypt = encrypt == "strict"
	}
	if trust, ok := datasource.MapBool(cfgMap, "trust_server_certificate"); ok {
		cfg.TrustServerCertificate = trust
	}
	if timeout, ok := datasource.MapInt(cfgMap, "connection_timeout"); ok {
		cfg.ConnectionTimeout = timeout
	}

	// Auto-detect auth method: client_id means service principal, a user name means SQL auth.
	if method, ok := datasource.MapString(cfgMap, "auth_method"); ok {
		cfg.AuthMethod = method
	} else if _, ok := datasource.MapString(cfgMap, "client_id"); ok {
		cfg.AuthMethod = AuthServicePrincipal
	} else if _, ok := datasource.MapString(cfgMap, "username"); ok {
		cfg.AuthMethod = AuthSQL
	} else if _, ok := datasource.MapString(cfgMap, "user"); ok {
		cfg.AuthMethod = AuthSQL
	} else {
		return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
	}

	switch cfg.AuthMethod {
	case AuthSQL:
		if username, ok := datasource.MapString(cfgMap, "username"); ok {
			cfg.Username = username
		} else if user, ok := datasource.MapString(cfgMap, "user"); ok {
			cfg.Username = user
		}
		// Password can be empty for some scenarios
		cfg.Password, _ = datasource.MapString(cfgMap, "password")
	case AuthServicePrincipal:
		cfg.TenantID, _ = datasource.MapString(cfgMap, "tenant_id")
		cfg.ClientID, _ = datasource.MapString(cfgMap, "client_id")
		cfg.ClientSecret, _ = datasource.MapString(cfgMap, "client_secret")
	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var _ models.BackendConfig = (*Config)(nil)
