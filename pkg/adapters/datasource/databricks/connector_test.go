package databricks

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		in   string
		want models.ColumnType
	}{
		{"INT", models.TypeInteger},
		{"bigint", models.TypeInteger},
		{"SMALLINT", models.TypeInteger},
		{"DECIMAL(10,2)", models.TypeNumber},
		{"DOUBLE", models.TypeNumber},
		{"FLOAT", models.TypeNumber},
		{"STRING", models.TypeString},
		{"VARCHAR(20)", models.TypeString},
		{"BOOLEAN", models.TypeBoolean},
		{"TIMESTAMP", models.TypeDatetime},
		{"DATE", models.TypeDatetime},
		{"ARRAY<STRING>", models.TypeArray},
		{"STRUCT<a:STRING>", models.TypeObject},
		{"MAP<STRING,STRING>", models.TypeObject},
		{"BINARY", models.TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeType(tt.in))
		})
	}
}

func TestDialect_LoadSchema(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW DATABASES").
		WillReturnRows(sqlmock.NewRows([]string{"databaseName"}).AddRow("sales").AddRow("empty"))
	mock.ExpectQuery("SHOW TABLES IN `sales`").
		WillReturnRows(sqlmock.NewRows([]string{"database", "tableName", "isTemporary"}).
			AddRow("sales", "orders", false))
	mock.ExpectQuery("DESCRIBE `sales`.`orders`").
		WillReturnRows(sqlmock.NewRows([]string{"col_name", "data_type", "comment"}).
			AddRow("id", "bigint", "NOT NULL primary key").
			AddRow("amount", "decimal(10,2)", nil).
			AddRow("placed", "timestamp", "order time").
			AddRow("", "", nil).
			AddRow("# Partition Information", "", nil).
			AddRow("placed", "timestamp", nil))
	mock.ExpectQuery("SHOW TABLES IN `empty`").
		WillReturnRows(sqlmock.NewRows([]string{"database", "tableName", "isTemporary"}))

	d := &dialect{cfg: &Config{}}
	schema, err := d.LoadSchema(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, schema.Databases, 2)
	sales := schema.Databases[0]
	assert.Equal(t, "sales", sales.Name)
	require.Len(t, sales.Tables, 1)
	cols := sales.Tables[0].Columns
	require.Len(t, cols, 3)
	assert.Equal(t, models.ColumnMetadata{Name: "id", Type: models.TypeInteger, Nullable: false, Description: "bigint"}, cols[0])
	assert.Equal(t, models.TypeNumber, cols[1].Type)
	assert.True(t, cols[1].Nullable)
	assert.Equal(t, models.TypeDatetime, cols[2].Type)

	assert.Equal(t, "empty", schema.Databases[1].Name)
	assert.Empty(t, schema.Databases[1].Tables)
}

func TestDialect_OpenPool(t *testing.T) {
	d := &dialect{cfg: &Config{
		ServerHostname: "adb-1.cloud.databricks.com",
		Port:           443,
		HTTPPath:       "/sql/1.0/warehouses/x",
		AccessToken:    "dapi-test",
		Catalog:        "main",
		FetchSize:      500,
	}}

	pool, err := d.OpenPool(context.Background(), datasource.PoolSettings{MaxConns: 2})
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, driverName, pool.GetType())
	db, err := datasource.GetSQLDB(pool)
	require.NoError(t, err)
	assert.Equal(t, 2, db.Stats().MaxOpenConnections)
}

func TestNewConnector(t *testing.T) {
	cfg, err := datasource.ParseConnectionConfig("dbx", "tenant-1", "databricks", "Warehouse", map[string]any{
		"server_hostname": "h", "http_path": "/p", "access_token": "t",
	})
	require.NoError(t, err)

	conn, err := NewConnector(cfg, datasource.Deps{})
	require.NoError(t, err)
	assert.Equal(t, models.DataSourceDatabricks, conn.Type())
	assert.False(t, conn.TestConnection(context.Background()))

	health := conn.GetHealth(context.Background())
	assert.Equal(t, models.Unhealthy, health.Status)
	assert.Equal(t, "h", health.Details["server_hostname"])
}
