package all

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

func TestAllAdaptersRegistered(t *testing.T) {
	for _, dsType := range []models.DataSourceType{
		models.DataSourceBigQuery,
		models.DataSourceDatabricks,
		models.DataSourceDuckDB,
		models.DataSourceMySQL,
		models.DataSourcePostgreSQL,
		models.DataSourceSnowflake,
		models.DataSourceSQLServer,
	} {
		assert.True(t, datasource.IsRegistered(dsType), "%s not registered", dsType)
	}
	assert.Len(t, datasource.RegisteredAdapters(), 7)
}
