package bigquery

import (
	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.DataSourceBigQuery,
			DisplayName: "BigQuery",
			Description: "Google BigQuery (configuration only)",
			Stub:        true,
		},
		FromMap: func(config map[string]any) (models.BackendConfig, error) {
			return FromMap(config)
		},
		Factory: func(cfg models.ConnectionConfig, _ datasource.Deps) (datasource.Connector, error) {
			if _, err := datasource.BackendAs[Config](cfg); err != nil {
				return nil, err
			}
			return datasource.NewStubConnector(models.DataSourceBigQuery, "BigQuery"), nil
		},
	})
}
