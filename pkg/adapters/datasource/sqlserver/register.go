package sqlserver

import (
	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.DataSourceSQLServer,
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2016+ and Azure SQL Database with SQL or Azure AD service principal authentication",
		},
		FromMap: func(config map[string]any) (models.BackendConfig, error) {
			return FromMap(config)
		},
		Factory: func(cfg models.ConnectionConfig, deps datasource.Deps) (datasource.Connector, error) {
			return NewConnector(cfg, deps)
		},
	})
}
