package models

import (
	"fmt"
	"strings"
)

// DataSourceType identifies the backend a connector talks to.
type DataSourceType string

const (
	DataSourceDatabricks DataSourceType = "databricks"
	DataSourceDuckDB     DataSourceType = "duckdb"
	DataSourceBigQuery   DataSourceType = "bigquery"
	DataSourceSnowflake  DataSourceType = "snowflake"
	DataSourcePostgreSQL DataSourceType = "postgresql"
	DataSourceMySQL      DataSourceType = "mysql"
	DataSourceSQLServer  DataSourceType = "sqlserver"
)

// ParseDataSourceType normalizes a user supplied type name.
// "postgres" is accepted as an alias for "postgresql".
func ParseDataSourceType(s string) (DataSourceType, error) {
	switch t := DataSourceType(strings.ToLower(strings.TrimSpace(s))); t {
	case DataSourceDatabricks, DataSourceDuckDB, DataSourceBigQuery, DataSourceSnowflake,
		DataSourcePostgreSQL, DataSourceMySQL, DataSourceSQLServer:
		return t, nil
	case "postgres":
		return DataSourcePostgreSQL, nil
	case "mssql":
		return DataSourceSQLServer, nil
	default:
		return "", fmt.Errorf("unsupported data source type: %s", s)
	}
}

// DataSourceStatus tracks the outcome of the most recent health probe.
type DataSourceStatus string

const (
	StatusActive   DataSourceStatus = "active"
	StatusInactive DataSourceStatus = "inactive"
	StatusError    DataSourceStatus = "error"
)

// BackendConfig is the backend-specific part of a ConnectionConfig.
// Each connector package provides exactly one implementation, so the
// dynamic type is the variant tag and DataSourceType must agree with it.
type BackendConfig interface {
	DataSourceType() DataSourceType
	Validate() error
}

// ConnectionConfig describes a registered data source.
type ConnectionConfig struct {
	ID          string           `json:"id"`
	TenantID    string           `json:"tenant_id"`
	Type        DataSourceType   `json:"type"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Status      DataSourceStatus `json:"status"`
	Backend     BackendConfig    `json:"-"`
}

// Validate checks identity fields and that the backend variant matches Type.
func (c *ConnectionConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("data source id is required")
	}
	if c.Type == "" {
		return fmt.Errorf("data source type is required")
	}
	if c.Backend == nil {
		return fmt.Errorf("backend config is required for %s", c.Type)
	}
	if got := c.Backend.DataSourceType(); got != c.Type {
		return fmt.Errorf("backend config is for %s, data source type is %s", got, c.Type)
	}
	return c.Backend.Validate()
}

// DataSourceInfo is the public view of a registered source.
type DataSourceInfo struct {
	ID       string           `json:"id"`
	TenantID string           `json:"tenant_id"`
	Type     DataSourceType   `json:"type"`
	Name     string           `json:"name"`
	Status   DataSourceStatus `json:"status"`
}
