package bigquery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
)

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{"projectId": "analytics-prod", "keyFile": "/secrets/sa.json", "dataset": "events"})
	require.NoError(t, err)
	assert.Equal(t, &Config{ProjectID: "analytics-prod", KeyFile: "/secrets/sa.json", Dataset: "events"}, cfg)

	_, err = FromMap(map[string]any{"key_file": "/k.json"})
	assert.EqualError(t, err, "project_id is required")
	_, err = FromMap(map[string]any{"project_id": "p"})
	assert.EqualError(t, err, "key_file is required")
}

func TestRegisteredAsStub(t *testing.T) {
	cfg, err := datasource.ParseConnectionConfig("bq", "tenant-1", "bigquery", "", map[string]any{
		"project_id": "p", "key_file": "/k.json",
	})
	require.NoError(t, err)

	conn, err := datasource.NewConnectorFactory(datasource.Deps{}).NewConnector(cfg)
	require.NoError(t, err)

	err = conn.Connect(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotImplemented)
	assert.Contains(t, err.Error(), "BigQuery connector not yet implemented")

	for _, info := range datasource.RegisteredAdapters() {
		if info.Type == cfg.Type {
			assert.True(t, info.Stub)
		}
	}
}
