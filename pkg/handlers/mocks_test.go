package handlers

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/cache"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/services"
)

var _ services.QueryService = (*mockQueryService)(nil)

// mockQueryService records calls and returns canned results.
type mockQueryService struct {
	mu sync.Mutex

	sources map[string]models.DataSourceInfo
	health  map[string]models.HealthStatus

	result      *models.QueryResult
	queryErr    error
	lastRequest *models.QueryRequest

	validation models.ValidationResult
	schema     *models.Schema
	stats      cache.Stats
	cleared    int

	registered  []models.ConnectionConfig
	removed     []string
	invalidated []string
}

func newMockQueryService(sources ...models.DataSourceInfo) *mockQueryService {
	m := &mockQueryService{
		sources: make(map[string]models.DataSourceInfo),
		health:  make(map[string]models.HealthStatus),
	}
	for _, s := range sources {
		m.sources[s.ID] = s
	}
	return m
}

func (m *mockQueryService) RegisterDataSource(ctx context.Context, cfg models.ConnectionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, cfg)
	m.sources[cfg.ID] = models.DataSourceInfo{
		ID: cfg.ID, TenantID: cfg.TenantID, Type: cfg.Type, Name: cfg.Name, Status: models.StatusActive,
	}
	return nil
}

func (m *mockQueryService) RegisterConnector(cfg models.ConnectionConfig, conn datasource.Connector) error {
	return m.RegisterDataSource(context.Background(), cfg)
}

func (m *mockQueryService) RemoveDataSource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, id)
	delete(m.sources, id)
	return nil
}

func (m *mockQueryService) ExecuteQuery(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRequest = req
	return m.result, m.queryErr
}

func (m *mockQueryService) GetSchema(ctx context.Context, id string) (*models.Schema, error) {
	return m.schema, nil
}

func (m *mockQueryService) ValidateQuery(ctx context.Context, id, sqlQuery string) (models.ValidationResult, error) {
	return m.validation, nil
}

func (m *mockQueryService) GetHealthStatus(ctx context.Context) map[string]models.HealthStatus {
	out := make(map[string]models.HealthStatus, len(m.health))
	for k, v := range m.health {
		out[k] = v
	}
	return out
}

func (m *mockQueryService) GetDataSource(id string) (models.DataSourceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.sources[id]
	if !ok {
		return models.DataSourceInfo{}, apperrors.NotFound("data source not found: %s", id)
	}
	return info, nil
}

func (m *mockQueryService) ListDataSources() []models.DataSourceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.DataSourceInfo, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	return out
}

func (m *mockQueryService) ListTypes() []datasource.AdapterInfo {
	return datasource.RegisteredAdapters()
}

func (m *mockQueryService) GetCacheStats(ctx context.Context) (cache.Stats, error) {
	return m.stats, nil
}

func (m *mockQueryService) ClearCache(ctx context.Context, id string) (int, error) {
	return m.cleared, nil
}

func (m *mockQueryService) InvalidateTenant(ctx context.Context, tenantID string) (int, error) {
	m.invalidated = append(m.invalidated, tenantID)
	return m.cleared, nil
}

func (m *mockQueryService) Close() error { return nil }

type mockCacheHealth struct{ healthy bool }

func (m mockCacheHealth) HealthCheck(ctx context.Context) bool { return m.healthy }
