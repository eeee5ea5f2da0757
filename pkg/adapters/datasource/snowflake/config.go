// Package snowflake registers a configuration-only Snowflake connector.
package snowflake

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// Config contains Snowflake connection options.
type Config struct {
	Account   string
	Username  string
	Password  string
	Warehouse string
	Database  string
	Schema    string
}

func (c *Config) DataSourceType() models.DataSourceType {
	return models.DataSourceSnowflake
}

func (c *Config) Validate() error {
	if c.Account == "" {
		return fmt.Errorf("account is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

func FromMap(cfgMap map[string]any) (*Config, error) {
	cfg := &Config{}
	cfg.Account, _ = datasource.MapString(cfgMap, "account")
	if cfg.Username, _ = datasource.MapString(cfgMap, "username"); cfg.Username == "" {
		cfg.Username, _ = datasource.MapString(cfgMap, "user")
	}
	cfg.Password, _ = datasource.MapString(cfgMap, "password")
	cfg.Warehouse, _ = datasource.MapString(cfgMap, "warehouse")
	cfg.Database, _ = datasource.MapString(cfgMap, "database")
	cfg.Schema, _ = datasource.MapString(cfgMap, "schema")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var _ models.BackendConfig = (*Config)(nil)
