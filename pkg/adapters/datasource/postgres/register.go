package postgres

import (
	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.DataSourcePostgreSQL,
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		FromMap: func(config map[string]any) (models.BackendConfig, error) {
			return FromMap(config)
		},
		Factory: func(cfg models.ConnectionConfig, deps datasource.Deps) (datasource.Connector, error) {
			return NewConnector(cfg, deps)
		},
	})
}
