package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/cache"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/logging"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/metrics"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-query-engine/pkg/sql"
)

const (
	DefaultCacheTTL           = time.Hour
	DefaultQueryTimeout       = 30 * time.Second
	DefaultMaxResultRows      = 10000
	DefaultHealthCheckTimeout = 5 * time.Second

	// maxRowsKeyParam folds the effective row cap into the cache key. It is
	// not a valid parameter name, so it cannot collide with user parameters.
	maxRowsKeyParam = "$max_rows"

	invalidateTimeout = 5 * time.Second
)

// QueryService routes queries to registered data sources through the SQL
// guard and the result cache.
type QueryService interface {
	// RegisterDataSource builds a connector for cfg.Type, connects it and
	// registers it. On failure nothing is registered. Registering an id that
	// already exists replaces and closes the previous connector.
	RegisterDataSource(ctx context.Context, cfg models.ConnectionConfig) error

	// RegisterConnector registers an already connected connector, such as a
	// DuckDB source prepared with bulk loads.
	RegisterConnector(cfg models.ConnectionConfig, conn datasource.Connector) error

	// RemoveDataSource closes and unregisters a source. Unknown ids are a no-op.
	RemoveDataSource(id string) error

	// ExecuteQuery runs req against its data source, serving from the cache when allowed.
	ExecuteQuery(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error)

	GetSchema(ctx context.Context, id string) (*models.Schema, error)

	// ValidateQuery applies the guard and then asks the backend.
	ValidateQuery(ctx context.Context, id, sqlQuery string) (models.ValidationResult, error)

	// GetHealthStatus probes every source in parallel. A failing or
	// panicking probe only marks its own source unhealthy.
	GetHealthStatus(ctx context.Context) map[string]models.HealthStatus

	GetDataSource(id string) (models.DataSourceInfo, error)
	ListDataSources() []models.DataSourceInfo
	ListTypes() []datasource.AdapterInfo

	GetCacheStats(ctx context.Context) (cache.Stats, error)

	// ClearCache removes cached results of one data source.
	ClearCache(ctx context.Context, id string) (int, error)

	// InvalidateTenant removes cached results of every source of a tenant.
	InvalidateTenant(ctx context.Context, tenantID string) (int, error)

	// Close closes every connector and the cache. It is idempotent.
	Close() error
}

// QueryServiceConfig bounds query execution. Zero values use the defaults.
type QueryServiceConfig struct {
	DefaultCacheTTL    time.Duration
	DefaultTimeout     time.Duration
	MaxResultRows      int
	MaxQueryLength     int
	HealthCheckTimeout time.Duration
}

func (c QueryServiceConfig) withDefaults() QueryServiceConfig {
	if c.DefaultCacheTTL <= 0 {
		c.DefaultCacheTTL = DefaultCacheTTL
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultQueryTimeout
	}
	if c.MaxResultRows <= 0 {
		c.MaxResultRows = DefaultMaxResultRows
	}
	if c.MaxQueryLength <= 0 {
		c.MaxQueryLength = sqlguard.DefaultMaxQueryLength
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = DefaultHealthCheckTimeout
	}
	return c
}

type registeredSource struct {
	cfg  models.ConnectionConfig
	conn datasource.Connector
}

type queryService struct {
	mu       sync.RWMutex
	registry map[string]*registeredSource
	closed   bool

	factory datasource.ConnectorFactory
	cache   cache.Store
	guard   *sqlguard.Guard
	cfg     QueryServiceConfig
	group   singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewQueryService creates a service. store may be nil to disable caching;
// m may be nil to disable metrics.
func NewQueryService(
	factory datasource.ConnectorFactory,
	store cache.Store,
	cfg QueryServiceConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &queryService{
		registry: make(map[string]*registeredSource),
		factory:  factory,
		cache:    store,
		guard:    sqlguard.NewGuard(cfg.MaxQueryLength),
		cfg:      cfg,
		logger:   logger.Named("query"),
		metrics:  m,
	}
}

func (s *queryService) RegisterDataSource(ctx context.Context, cfg models.ConnectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return apperrors.Invalid(err)
	}

	conn, err := s.factory.NewConnector(cfg)
	if err != nil {
		return apperrors.Invalid(err)
	}

	if err := conn.Connect(ctx); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			s.logger.Warn("Failed to close connector after connect error",
				zap.String("datasource_id", cfg.ID),
				logging.ErrorField(closeErr))
		}
		s.logger.Error("Failed to register data source",
			zap.String("datasource_id", cfg.ID),
			zap.String("tenant_id", cfg.TenantID),
			zap.String("source_type", string(cfg.Type)),
			logging.ErrorField(err))
		if apperrors.KindOf(err) == apperrors.KindInternal {
			return apperrors.Connection(err, "failed to connect to data source %s", cfg.ID)
		}
		return err
	}

	return s.insert(cfg, conn)
}

func (s *queryService) RegisterConnector(cfg models.ConnectionConfig, conn datasource.Connector) error {
	if conn == nil {
		return apperrors.Validation("connector is required")
	}
	if err := cfg.Validate(); err != nil {
		return apperrors.Invalid(err)
	}
	if conn.Type() != cfg.Type {
		return apperrors.Validation("connector type %s does not match data source type %s", conn.Type(), cfg.Type)
	}
	return s.insert(cfg, conn)
}

func (s *queryService) insert(cfg models.ConnectionConfig, conn datasource.Connector) error {
	cfg.Status = models.StatusActive

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return apperrors.Validation("query service is closed")
	}
	old := s.registry[cfg.ID]
	s.registry[cfg.ID] = &registeredSource{cfg: cfg, conn: conn}
	count := len(s.registry)
	s.mu.Unlock()

	s.metrics.SetRegisteredSources(count)
	s.logger.Info("Registered data source",
		zap.String("datasource_id", cfg.ID),
		zap.String("tenant_id", cfg.TenantID),
		zap.String("source_type", string(cfg.Type)),
		zap.String("name", cfg.Name))

	if old != nil {
		s.retire(old)
	}
	return nil
}

// retire closes a replaced or removed connector and drops its cached results.
func (s *queryService) retire(src *registeredSource) {
	if err := src.conn.Close(); err != nil {
		s.logger.Warn("Failed to close connector",
			zap.String("datasource_id", src.cfg.ID),
			logging.ErrorField(err))
	}
	s.metrics.ForgetDataSource(src.cfg.ID, string(src.cfg.Type))

	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()
	if _, err := s.cache.InvalidatePattern(ctx, cache.DataSourcePattern(src.cfg.TenantID, src.cfg.ID)); err != nil {
		s.logger.Warn("Failed to invalidate cache for retired data source",
			zap.String("datasource_id", src.cfg.ID),
			logging.ErrorField(err))
	}
}

func (s *queryService) RemoveDataSource(id string) error {
	s.mu.Lock()
	src, ok := s.registry[id]
	if ok {
		delete(s.registry, id)
	}
	count := len(s.registry)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	s.metrics.SetRegisteredSources(count)
	s.retire(src)
	s.logger.Info("Removed data source",
		zap.String("datasource_id", id),
		zap.String("tenant_id", src.cfg.TenantID))
	return nil
}

// source returns the registered source for id. A non-empty tenantID must
// own the source; otherwise the source is reported as not found.
func (s *queryService) source(id, tenantID string) (*registeredSource, error) {
	s.mu.RLock()
	src, ok := s.registry[id]
	s.mu.RUnlock()

	if !ok || (tenantID != "" && src.cfg.TenantID != tenantID) {
		return nil, apperrors.NotFound("data source not found: %s", id)
	}
	return src, nil
}

func (s *queryService) ExecuteQuery(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error) {
	start := time.Now()

	if req == nil || req.DataSourceID == "" {
		return nil, apperrors.Validation("data_source_id is required")
	}
	if strings.TrimSpace(req.SQL) == "" {
		return nil, apperrors.Validation("sql is required")
	}
	if req.MaxRows < 0 {
		return nil, apperrors.Validation("max_rows must not be negative")
	}
	if req.CacheTTL < 0 {
		return nil, apperrors.Validation("cache_ttl must not be negative")
	}

	src, err := s.source(req.DataSourceID, req.TenantID)
	if err != nil {
		return nil, err
	}
	sourceType := string(src.cfg.Type)
	logger := s.logger.With(
		zap.String("datasource_id", src.cfg.ID),
		zap.String("tenant_id", src.cfg.TenantID),
		zap.String("source_type", sourceType))

	if err := s.guard.Check(req.SQL, req.Parameters); err != nil {
		s.metrics.ObserveQuery(sourceType, metrics.StatusBlocked, time.Since(start), 0)
		logger.Warn("Query rejected by SQL guard",
			logging.QueryField(req.SQL),
			logging.ErrorField(err))
		return nil, apperrors.Invalid(err)
	}

	maxRows := s.cfg.MaxResultRows
	if req.MaxRows > 0 && req.MaxRows < maxRows {
		maxRows = req.MaxRows
	}
	timeout := s.cfg.DefaultTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ec := datasource.ExecutionContext{Parameters: req.Parameters, Timeout: timeout, MaxRows: maxRows}

	if s.cache == nil || !req.CacheEnabled() {
		result, err := s.execute(ctx, src, req.SQL, ec)
		return s.finish(logger, sourceType, start, result, err, false)
	}

	key := cache.GenerateKey(src.cfg.TenantID, src.cfg.ID, req.SQL, keyParams(req.Parameters, maxRows))
	if cached := s.lookup(ctx, logger, key); cached != nil {
		return s.finish(logger, sourceType, start, cached, nil, true)
	}

	ttl := s.cfg.DefaultCacheTTL
	if req.CacheTTL > 0 {
		ttl = time.Duration(req.CacheTTL) * time.Second
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		result, err := s.execute(ctx, src, req.SQL, ec)
		if err != nil {
			return nil, err
		}
		if setErr := s.cache.Set(ctx, key, result, ttl); setErr != nil {
			s.metrics.CacheError()
			logger.Warn("Failed to cache query result", logging.ErrorField(setErr))
		} else {
			s.metrics.CacheSet()
		}
		return result, nil
	})
	if err != nil {
		return s.finish(logger, sourceType, start, nil, err, false)
	}
	result := v.(*models.QueryResult)
	if shared {
		result = result.Clone()
	}
	return s.finish(logger, sourceType, start, result, nil, false)
}

// lookup returns a cached copy marked Cached, or nil. Cache failures are
// logged and treated as misses.
func (s *queryService) lookup(ctx context.Context, logger *zap.Logger, key string) *models.QueryResult {
	lookupStart := time.Now()
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.CacheError()
		logger.Warn("Cache lookup failed; executing query", logging.ErrorField(err))
		return nil
	}
	if cached == nil {
		s.metrics.CacheMiss()
		return nil
	}
	s.metrics.CacheHit()
	cached.Metadata.Cached = true
	cached.Metadata.ExecutionTime = time.Since(lookupStart).Milliseconds()
	return cached
}

func (s *queryService) execute(ctx context.Context, src *registeredSource, sqlQuery string, ec datasource.ExecutionContext) (*models.QueryResult, error) {
	execStart := time.Now()
	raw, err := src.conn.ExecuteQuery(ctx, sqlQuery, ec)
	s.metrics.ObserveConnector(string(src.cfg.Type), time.Since(execStart))
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInternal {
			return nil, apperrors.Execution(err, "query failed on data source %s", src.cfg.ID)
		}
		return nil, err
	}

	rows := raw.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	columns := raw.Columns
	if columns == nil {
		columns = []models.Column{}
	}
	elapsed := raw.Metrics.ExecutionTime
	if elapsed <= 0 {
		elapsed = time.Since(execStart)
	}
	return &models.QueryResult{
		Columns: columns,
		Rows:    rows,
		Metadata: models.QueryMetadata{
			ExecutionTime: elapsed.Milliseconds(),
			RowCount:      len(rows),
			DataScanned:   raw.Metrics.DataScanned,
		},
	}, nil
}

func (s *queryService) finish(logger *zap.Logger, sourceType string, start time.Time, result *models.QueryResult, err error, cached bool) (*models.QueryResult, error) {
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveQuery(sourceType, metrics.StatusError, elapsed, 0)
		logger.Error("Query failed",
			zap.Duration("duration", elapsed),
			zap.String("error_kind", string(apperrors.KindOf(err))),
			logging.ErrorField(err))
		return nil, err
	}

	status := metrics.StatusSuccess
	if cached {
		status = metrics.StatusCached
	}
	s.metrics.ObserveQuery(sourceType, status, elapsed, result.Metadata.RowCount)
	logger.Info("Query executed",
		zap.Bool("cached", cached),
		zap.Int("rows", result.Metadata.RowCount),
		zap.Int64("execution_ms", result.Metadata.ExecutionTime),
		zap.Duration("duration", elapsed))
	return result, nil
}

func keyParams(params map[string]any, maxRows int) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[maxRowsKeyParam] = maxRows
	return out
}

func (s *queryService) GetSchema(ctx context.Context, id string) (*models.Schema, error) {
	src, err := s.source(id, "")
	if err != nil {
		return nil, err
	}
	schema, err := src.conn.GetSchema(ctx)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInternal {
			return nil, apperrors.Execution(err, "failed to load schema for %s", id)
		}
		return nil, err
	}
	return schema, nil
}

func (s *queryService) ValidateQuery(ctx context.Context, id, sqlQuery string) (models.ValidationResult, error) {
	if strings.TrimSpace(sqlQuery) == "" {
		return models.ValidationResult{}, apperrors.Validation("sql is required")
	}
	src, err := s.source(id, "")
	if err != nil {
		return models.ValidationResult{}, err
	}
	if err := s.guard.CheckSQL(sqlQuery); err != nil {
		return models.ValidationResult{IsValid: false, Error: err.Error()}, nil
	}
	return src.conn.ValidateQuery(ctx, sqlQuery), nil
}

func (s *queryService) GetHealthStatus(ctx context.Context) map[string]models.HealthStatus {
	s.mu.RLock()
	sources := make([]*registeredSource, 0, len(s.registry))
	for _, src := range s.registry {
		sources = append(sources, src)
	}
	s.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]models.HealthStatus, len(sources))
	)
	for _, src := range sources {
		wg.Add(1)
		go func(src *registeredSource) {
			defer wg.Done()
			status := s.probe(ctx, src)

			mu.Lock()
			results[src.cfg.ID] = status
			mu.Unlock()

			s.recordHealth(src, status)
		}(src)
	}
	wg.Wait()
	return results
}

// probe runs one health check bounded by HealthCheckTimeout. A probe that
// panics or outlives the timeout is reported unhealthy.
func (s *queryService) probe(ctx context.Context, src *registeredSource) models.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthCheckTimeout)
	defer cancel()

	done := make(chan models.HealthStatus, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Health check panicked",
					zap.String("datasource_id", src.cfg.ID),
					zap.Any("panic", r))
				done <- unhealthy(fmt.Sprintf("health check panicked: %v", r))
			}
		}()
		done <- src.conn.GetHealth(ctx)
	}()

	select {
	case status := <-done:
		if status.LastChecked.IsZero() {
			status.LastChecked = time.Now()
		}
		return status
	case <-ctx.Done():
		return unhealthy("health check timed out: " + ctx.Err().Error())
	}
}

func unhealthy(msg string) models.HealthStatus {
	return models.HealthStatus{
		Status:      models.Unhealthy,
		LastChecked: time.Now(),
		Details:     map[string]any{"error": msg},
	}
}

func (s *queryService) recordHealth(src *registeredSource, status models.HealthStatus) {
	up := status.Status == models.Healthy
	s.metrics.SetDataSourceUp(src.cfg.ID, string(src.cfg.Type), up)

	s.mu.Lock()
	defer s.mu.Unlock()
	// The source may have been replaced or removed while probing.
	if current, ok := s.registry[src.cfg.ID]; ok && current == src {
		if up {
			current.cfg.Status = models.StatusActive
		} else {
			current.cfg.Status = models.StatusError
		}
	}
}

func (s *queryService) GetDataSource(id string) (models.DataSourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.registry[id]
	if !ok {
		return models.DataSourceInfo{}, apperrors.NotFound("data source not found: %s", id)
	}
	return info(src.cfg), nil
}

func (s *queryService) ListDataSources() []models.DataSourceInfo {
	s.mu.RLock()
	out := make([]models.DataSourceInfo, 0, len(s.registry))
	for _, src := range s.registry {
		out = append(out, info(src.cfg))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func info(cfg models.ConnectionConfig) models.DataSourceInfo {
	return models.DataSourceInfo{
		ID:       cfg.ID,
		TenantID: cfg.TenantID,
		Type:     cfg.Type,
		Name:     cfg.Name,
		Status:   cfg.Status,
	}
}

func (s *queryService) ListTypes() []datasource.AdapterInfo {
	return s.factory.ListTypes()
}

func (s *queryService) GetCacheStats(ctx context.Context) (cache.Stats, error) {
	if s.cache == nil {
		return cache.Stats{Backend: "none"}, nil
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return cache.Stats{}, apperrors.Cache(err, "failed to read cache stats")
	}
	return stats, nil
}

func (s *queryService) ClearCache(ctx context.Context, id string) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	pattern := cache.AnyTenantDataSourcePattern(id)
	if src, err := s.source(id, ""); err == nil {
		pattern = cache.DataSourcePattern(src.cfg.TenantID, id)
	}
	return s.invalidate(ctx, pattern)
}

func (s *queryService) InvalidateTenant(ctx context.Context, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, apperrors.Validation("tenant id is required")
	}
	if s.cache == nil {
		return 0, nil
	}
	return s.invalidate(ctx, cache.TenantPattern(tenantID))
}

func (s *queryService) invalidate(ctx context.Context, pattern string) (int, error) {
	n, err := s.cache.InvalidatePattern(ctx, pattern)
	if err != nil {
		return n, apperrors.Cache(err, "failed to invalidate cache")
	}
	s.metrics.CacheInvalidated(n)
	s.logger.Info("Invalidated cached results", zap.String("pattern", pattern), zap.Int("removed", n))
	return n, nil
}

func (s *queryService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sources := s.registry
	s.registry = make(map[string]*registeredSource)
	s.mu.Unlock()

	for id, src := range sources {
		if err := src.conn.Close(); err != nil {
			s.logger.Warn("Failed to close connector", zap.String("datasource_id", id), logging.ErrorField(err))
		}
	}
	s.metrics.SetRegisteredSources(0)

	var errs []error
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	s.logger.Info("Query service closed", zap.Int("closed_sources", len(sources)))
	return errors.Join(errs...)
}

var _ QueryService = (*queryService)(nil)
