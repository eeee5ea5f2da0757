//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/testhelpers"
)

func setupConnector(t *testing.T, mgr *datasource.ConnectionManager) *Connector {
	t.Helper()

	testDB := testhelpers.GetTestDB(t)
	cfg, err := datasource.ParseConnectionConfig("pg-1", "tenant-1", "postgres", "", map[string]any{
		"host":     testDB.Host,
		"port":     testDB.Port,
		"user":     testhelpers.TestDBUser,
		"password": testhelpers.TestDBPassword,
		"database": testhelpers.TestDBName,
		"ssl_mode": "disable",
	})
	require.NoError(t, err)

	conn, err := NewConnector(cfg, datasource.Deps{ConnMgr: mgr, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, conn.Connect(ctx))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestConnector_ExecuteQuery(t *testing.T) {
	conn := setupConnector(t, nil)
	ctx := context.Background()

	assert.True(t, conn.TestConnection(ctx))

	res, err := conn.ExecuteQuery(ctx,
		"SELECT id, customer, total, tags, external_id FROM orders WHERE customer = $name",
		datasource.ExecutionContext{Parameters: map[string]any{"name": "acme"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, "acme", row["customer"])
	assert.InDelta(t, 125.50, row["total"], 1e-9)
	assert.Equal(t, []any{"priority"}, row["tags"])
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", row["external_id"])

	types := map[string]models.ColumnType{}
	for _, c := range res.Columns {
		types[c.Name] = c.Type
	}
	assert.Equal(t, models.TypeInteger, types["id"])
	assert.Equal(t, models.TypeDecimal, types["total"])
	assert.Equal(t, models.TypeArray, types["tags"])
	assert.Equal(t, models.TypeString, types["external_id"])
}

func TestConnector_ExecuteQuery_MaxRowsAndTimeout(t *testing.T) {
	conn := setupConnector(t, nil)
	ctx := context.Background()

	res, err := conn.ExecuteQuery(ctx, "SELECT * FROM generate_series(1, 50)", datasource.ExecutionContext{MaxRows: 5})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 5)

	_, err = conn.ExecuteQuery(ctx, "SELECT pg_sleep(5)", datasource.ExecutionContext{Timeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindExecution, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "timed out")

	_, err = conn.ExecuteQuery(ctx, "SELECT 1; SELECT 2", datasource.ExecutionContext{})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestConnector_GetSchema(t *testing.T) {
	conn := setupConnector(t, nil)

	schema, err := conn.GetSchema(context.Background())
	require.NoError(t, err)

	var orders *models.Table
	for i := range schema.Databases {
		if schema.Databases[i].Name != "public" {
			continue
		}
		for j := range schema.Databases[i].Tables {
			if schema.Databases[i].Tables[j].Name == "orders" {
				orders = &schema.Databases[i].Tables[j]
			}
		}
	}
	require.NotNil(t, orders)
	require.Len(t, orders.Columns, 6)
	assert.Equal(t, "id", orders.Columns[0].Name)
	assert.False(t, orders.Columns[0].Nullable)
	assert.Equal(t, models.TypeDecimal, orders.Columns[2].Type)
	assert.True(t, orders.Columns[2].Nullable)
	assert.Equal(t, models.TypeTimestamp, orders.Columns[3].Type)
	assert.Equal(t, models.TypeArray, orders.Columns[4].Type)
}

func TestConnector_ValidateQuery(t *testing.T) {
	conn := setupConnector(t, nil)
	ctx := context.Background()

	assert.True(t, conn.ValidateQuery(ctx, "SELECT * FROM orders").IsValid)

	res := conn.ValidateQuery(ctx, "SELECT * FROM no_such_table")
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Error, "no_such_table")
}

func TestConnector_ManagedPool(t *testing.T) {
	mgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zaptest.NewLogger(t), nil)
	t.Cleanup(func() { _ = mgr.Close() })

	conn := setupConnector(t, mgr)
	assert.Equal(t, 1, mgr.GetStats().TotalPools)

	health := conn.GetHealth(context.Background())
	assert.Equal(t, models.Healthy, health.Status)
	assert.Equal(t, testhelpers.TestDBName, health.Details["database"])

	require.NoError(t, conn.Close())
	assert.Equal(t, 0, mgr.GetStats().TotalPools)
	assert.False(t, conn.TestConnection(context.Background()))
}
