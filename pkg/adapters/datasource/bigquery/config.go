// Package bigquery registers a configuration-only BigQuery connector. The
// connector accepts and validates configuration but fails on Connect.
package bigquery

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// Config contains BigQuery connection options.
type Config struct {
	ProjectID string
	KeyFile   string
	Dataset   string
}

func (c *Config) DataSourceType() models.DataSourceType {
	return models.DataSourceBigQuery
}

func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if c.KeyFile == "" {
		return fmt.Errorf("key_file is required")
	}
	return nil
}

// FromMap accepts snake_case keys and the camelCase forms used by dashboard payloads.
func FromMap(cfgMap map[string]any) (*Config, error) {
	cfg := &Config{
		ProjectID: firstString(cfgMap, "project_id", "projectId"),
		KeyFile:   firstString(cfgMap, "key_file", "keyFile"),
		Dataset:   firstString(cfgMap, "dataset"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstString(cfgMap map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := datasource.MapString(cfgMap, k); ok {
			return s
		}
	}
	return ""
}

var _ models.BackendConfig = (*Config)(nil)
