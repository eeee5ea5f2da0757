package mysql

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/config"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// Config contains MySQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// TLS is the driver's tls parameter: "true", "false", "skip-verify" or "preferred".
	TLS            string
	ConnectTimeout time.Duration
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// DefaultTLS returns the default TLS mode.
func DefaultTLS() string {
	return "preferred"
}

func (c *Config) DataSourceType() models.DataSourceType {
	return models.DataSourceMySQL
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
	switch c.TLS {
	case "true", "false", "skip-verify", "preferred":
	default:
		return fmt.Errorf("invalid tls mode %q", c.TLS)
	}
	return nil
}

// DriverConfig builds the go-sql-driver configuration. Time columns are
// parsed into time.Time.
func (c *Config) DriverConfig() *mysql.Config {
	dc := mysql.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(config.ResolveHostForDocker(c.Host), strconv.Itoa(c.Port))
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.TLSConfig = c.TLS
	if c.ConnectTimeout > 0 {
		dc.Timeout = c.ConnectTimeout
	}
	return dc
}

// Fingerprint changes whenever the DSN does.
func (c *Config) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.DriverConfig().FormatDSN()))
	return hex.EncodeToString(sum[:])
}

// FromMap creates a Config from a generic config map.
func FromMap(cfgMap map[string]any) (*Config, error) {
	cfg := &Config{
		Port: DefaultPort(),
		TLS:  DefaultTLS(),
	}

	var err error
	if cfg.Host, err = datasource.RequireString(cfgMap, "host"); err != nil {
		return nil, err
	}
	if port, ok := datasource.MapInt(cfgMap, "port"); ok {
		cfg.Port = port
	}
	if user, ok := datasource.MapString(cfgMap, "user"); ok {
		cfg.User = user
	} else if user, ok := datasource.MapString(cfgMap, "username"); ok {
		cfg.User = user
	}
	if password, ok := datasource.MapString(cfgMap, "password"); ok {
		cfg.Password = password
	}
	if database, ok := datasource.MapString(cfgMap, "database"); ok {
		cfg.Database = database
	}
	if tls, ok := datasource.MapString(cfgMap, "tls"); ok {
		cfg.TLS = tls
	} else if tls, ok := datasource.MapBool(cfgMap, "tls"); ok {
		cfg.TLS = strconv.FormatBool(tls)
	}
	if d, ok := datasource.MapDuration(cfgMap, "connect_timeout"); ok {
		cfg.ConnectTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var _ models.BackendConfig = (*Config)(nil)
