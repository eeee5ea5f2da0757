package mysql

import (
	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.DataSourceMySQL,
			DisplayName: "MySQL",
			Description: "Connect to MySQL 8+, MariaDB, Aurora MySQL",
		},
		FromMap: func(config map[string]any) (models.BackendConfig, error) {
			return FromMap(config)
		},
		Factory: func(cfg models.ConnectionConfig, deps datasource.Deps) (datasource.Connector, error) {
			return NewConnector(cfg, deps)
		},
	})
}
