package snowflake

import (
	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.DataSourceSnowflake,
			DisplayName: "Snowflake",
			Description: "Snowflake data warehouse (configuration only)",
			Stub:        true,
		},
		FromMap: func(config map[string]any) (models.BackendConfig, error) {
			return FromMap(config)
		},
		Factory: func(cfg models.ConnectionConfig, _ datasource.Deps) (datasource.Connector, error) {
			if _, err := datasource.BackendAs[Config](cfg); err != nil {
				return nil, err
			}
			return datasource.NewStubConnector(models.DataSourceSnowflake, "Snowflake"), nil
		},
	})
}
