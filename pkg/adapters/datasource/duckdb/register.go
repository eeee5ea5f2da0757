package duckdb

import (
	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.DataSourceDuckDB,
			DisplayName: "DuckDB",
			Description: "Embedded analytical database, in memory or file backed, with CSV, JSON and Parquet loading",
		},
		FromMap: func(config map[string]any) (models.BackendConfig, error) {
			return FromMap(config)
		},
		Factory: func(cfg models.ConnectionConfig, deps datasource.Deps) (datasource.Connector, error) {
			return NewConnector(cfg, deps)
		},
	})
}
