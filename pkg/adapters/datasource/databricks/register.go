package databricks

import (
	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.DataSourceDatabricks,
			DisplayName: "Databricks",
			Description: "Connect to Databricks SQL warehouses and clusters with a personal access token",
		},
		FromMap: func(config map[string]any) (models.BackendConfig, error) {
			return FromMap(config)
		},
		Factory: func(cfg models.ConnectionConfig, deps datasource.Deps) (datasource.Connector, error) {
			return NewConnector(cfg, deps)
		},
	})
}
