package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource/bigquery"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/cache"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

func newDatasourcesMux(svc *mockQueryService) *http.ServeMux {
	mux := http.NewServeMux()
	NewDatasourcesHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestDatasourcesHandler_List_FiltersByTenant(t *testing.T) {
	svc := newMockQueryService(
		models.DataSourceInfo{ID: "a", TenantID: "acme"},
		models.DataSourceInfo{ID: "b", TenantID: "globex"},
	)
	mux := newDatasourcesMux(svc)

	rec := doRequest(mux, http.MethodGet, "/api/datasources", "acme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := decodeResponse(t, rec).Data.([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	assert.Equal(t, "a", data[0].(map[string]any)["id"])

	rec = doRequest(mux, http.MethodGet, "/api/datasources", "", "")
	data, ok = decodeResponse(t, rec).Data.([]any)
	require.True(t, ok)
	assert.Len(t, data, 2)
}

func TestDatasourcesHandler_Create(t *testing.T) {
	svc := newMockQueryService()
	mux := newDatasourcesMux(svc)

	rec := doRequest(mux, http.MethodPost, "/api/datasources", "acme",
		`{"type":"bigquery","name":"warehouse","description":"analytics","config":{"project_id":"p1","key_file":"/secrets/key.json"}}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.registered, 1)
	cfg := svc.registered[0]
	assert.NotEmpty(t, cfg.ID)
	assert.Equal(t, "acme", cfg.TenantID)
	assert.Equal(t, models.DataSourceBigQuery, cfg.Type)
	assert.Equal(t, "analytics", cfg.Description)
}

func TestDatasourcesHandler_Create_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		tenant string
		body   string
	}{
		{"unknown type", "acme", `{"type":"oracle","name":"x","config":{}}`},
		{"invalid backend config", "acme", `{"type":"bigquery","name":"x","config":{"project_id":"p1"}}`},
		{"tenant mismatch", "acme", `{"tenant_id":"globex","type":"bigquery","config":{"project_id":"p1","key_file":"k"}}`},
		{"malformed", "acme", `[`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockQueryService()
			rec := doRequest(newDatasourcesMux(svc), http.MethodPost, "/api/datasources", tt.tenant, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeResponse(t, rec).Error)
			assert.Empty(t, svc.registered)
		})
	}
}

func TestDatasourcesHandler_Delete(t *testing.T) {
	svc := newMockQueryService(models.DataSourceInfo{ID: "a", TenantID: "acme"})
	mux := newDatasourcesMux(svc)

	rec := doRequest(mux, http.MethodDelete, "/api/datasources/a", "globex", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, svc.removed)

	rec = doRequest(mux, http.MethodDelete, "/api/datasources/a", "acme", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a"}, svc.removed)

	rec = doRequest(mux, http.MethodDelete, "/api/datasources/a", "acme", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasourcesHandler_Schema(t *testing.T) {
	svc := newMockQueryService(models.DataSourceInfo{ID: "a", TenantID: "acme"})
	svc.schema = &models.Schema{}
	mux := newDatasourcesMux(svc)

	rec := doRequest(mux, http.MethodGet, "/api/datasources/a/schema", "acme", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)

	rec = doRequest(mux, http.MethodGet, "/api/datasources/missing/schema", "acme", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasourcesHandler_Types(t *testing.T) {
	rec := doRequest(newDatasourcesMux(newMockQueryService()), http.MethodGet, "/api/datasources/types", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := decodeResponse(t, rec).Data.([]any)
	require.True(t, ok)
	assert.NotEmpty(t, data)
}

func TestDatasourcesHandler_Cache(t *testing.T) {
	svc := newMockQueryService(models.DataSourceInfo{ID: "a", TenantID: "acme"})
	svc.cleared = 4
	svc.stats = cache.Stats{Hits: 3, Misses: 1, Entries: 2, Backend: "memory"}
	mux := newDatasourcesMux(svc)

	rec := doRequest(mux, http.MethodDelete, "/api/datasources/a/cache", "acme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, float64(4), data["removed"])

	rec = doRequest(mux, http.MethodGet, "/api/cache/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, "memory", data["backend"])
	assert.InDelta(t, 0.75, data["hitRate"], 0.0001)

	rec = doRequest(mux, http.MethodDelete, "/api/cache", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(mux, http.MethodDelete, "/api/cache", "acme", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"acme"}, svc.invalidated)
}
