package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/logging"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-query-engine/pkg/sql"
)

const schemaQuery = `
	SELECT c.table_schema, c.table_name, c.column_name, c.data_type, c.is_nullable
	FROM information_schema.columns c
	JOIN information_schema.tables t
		ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
		AND c.table_schema NOT LIKE 'pg_toast%'
		AND t.table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY c.table_schema, c.table_name, c.ordinal_position`

// Connector provides PostgreSQL connectivity over a pgx pool.
type Connector struct {
	cfg     models.ConnectionConfig
	backend *Config
	deps    datasource.Deps
	logger  *zap.Logger

	mu    sync.RWMutex
	lease *datasource.Lease
	conn  datasource.PoolConnector
	pool  *pgxpool.Pool
}

// NewConnector creates an unconnected PostgreSQL connector.
func NewConnector(cfg models.ConnectionConfig, deps datasource.Deps) (*Connector, error) {
	backend, err := datasource.BackendAs[Config](cfg)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Connector{cfg: cfg, backend: backend, deps: deps, logger: deps.Logger}, nil
}

func (c *Connector) Type() models.DataSourceType {
	return models.DataSourcePostgreSQL
}

func (c *Connector) openPool(ctx context.Context, settings datasource.PoolSettings) (datasource.PoolConnector, error) {
	return datasource.CreatePostgresPool(ctx, c.backend.ConnectionString(), settings)
}

// Connect obtains a pool from the connection manager, or an unmanaged pool
// when none is configured (tests and one-off tools).
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		return nil
	}

	var (
		conn  datasource.PoolConnector
		lease *datasource.Lease
		err   error
	)
	if mgr := c.deps.ConnMgr; mgr != nil {
		lease, err = mgr.Acquire(ctx, c.cfg.TenantID, c.cfg.ID, c.backend.Fingerprint(), c.openPool)
		if err == nil {
			conn = lease.Pool()
		}
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, datasource.DefaultConnectTimeout)
		defer cancel()
		conn, err = c.openPool(pingCtx, datasource.PoolSettings{
			MaxConns: datasource.DefaultPoolMaxConns,
			MinConns: datasource.DefaultPoolMinConns,
		})
		if err == nil {
			if err = conn.Ping(pingCtx); err != nil {
				_ = conn.Close()
			}
		}
	}
	if err != nil {
		c.logger.Error("failed to connect",
			zap.String("host", c.backend.Host),
			logging.ErrorField(err),
		)
		return apperrors.Connection(err, "connect to postgresql data source %s", c.cfg.ID)
	}

	pool, err := datasource.GetPostgresPool(conn)
	if err != nil {
		if lease != nil {
			lease.Release()
		} else {
			_ = conn.Close()
		}
		return apperrors.Connection(err, "connect to postgresql data source %s", c.cfg.ID)
	}

	c.conn, c.lease, c.pool = conn, lease, pool
	c.logger.Info("connected", zap.String("host", c.backend.Host), zap.String("database", c.backend.Database))
	return nil
}

func (c *Connector) getPool() (*pgxpool.Pool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pool == nil {
		return nil, apperrors.Connection(nil, "postgresql data source %s is not connected", c.cfg.ID)
	}
	return c.pool, nil
}

// TestConnection verifies database access and that the session landed in
// the configured database rather than a server default.
func (c *Connector) TestConnection(ctx context.Context) bool {
	pool, err := c.getPool()
	if err != nil {
		return false
	}

	var currentDB string
	if err := pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		c.logger.Debug("connection test failed", logging.ErrorField(err))
		return false
	}
	if !strings.EqualFold(currentDB, c.backend.Database) {
		c.logger.Warn("connected to unexpected database",
			zap.String("expected", c.backend.Database),
			zap.String("actual", currentDB),
		)
		return false
	}
	return true
}

func (c *Connector) ExecuteQuery(ctx context.Context, sqlQuery string, ec datasource.ExecutionContext) (*datasource.ExecutionResult, error) {
	pool, err := c.getPool()
	if err != nil {
		return nil, err
	}

	prepared, err := datasource.PrepareSQL(sqlQuery, ec.Parameters)
	if err != nil {
		return nil, err
	}
	if ec.MaxRows > 0 {
		prepared = datasource.LimitWrapper(prepared, ec.MaxRows)
	}

	qctx, cancel := datasource.WithTimeout(ctx, ec.Timeout)
	defer cancel()

	start := time.Now()
	result, err := collectRows(qctx, pool, prepared)
	elapsed := time.Since(start)
	c.deps.Metrics.ObserveConnector(string(models.DataSourcePostgreSQL), elapsed)

	if err != nil {
		c.logger.Warn("query failed",
			logging.QueryField(prepared),
			zap.Duration("elapsed", elapsed),
			logging.ErrorField(err),
		)
		return nil, datasource.ExecutionError(qctx, err, ec.Timeout)
	}

	result.Metrics = datasource.QueryMetrics{ExecutionTime: elapsed, RowsReturned: len(result.Rows)}
	c.logger.Debug("query executed",
		logging.QueryField(prepared),
		zap.Duration("elapsed", elapsed),
		zap.Int("rows", len(result.Rows)),
	)
	return result, nil
}

func collectRows(ctx context.Context, pool *pgxpool.Pool, query string) (*datasource.ExecutionResult, error) {
	// Simple protocol: the statement is already fully substituted and a
	// prepared statement would only cost a round trip.
	rows, err := pool.Query(ctx, query, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]models.Column, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = models.Column{
			Name:     fd.Name,
			Type:     NormalizeType(pgTypeNameFromOID(fd.DataTypeOID)),
			Nullable: true,
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col.Name] = pgValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Unknown OIDs (enums, domains) fall back to the value itself.
	for i, fd := range fieldDescs {
		if pgTypeNameFromOID(fd.DataTypeOID) == "UNKNOWN" && len(resultRows) > 0 {
			columns[i].Type = datasource.InferColumnType(resultRows[0][columns[i].Name])
		}
	}

	return &datasource.ExecutionResult{Columns: columns, Rows: resultRows}, nil
}

func (c *Connector) GetSchema(ctx context.Context) (*models.Schema, error) {
	pool, err := c.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, schemaQuery)
	if err != nil {
		return nil, apperrors.Execution(err, "introspect postgresql schema")
	}
	defer rows.Close()

	var schemaRows []datasource.SchemaRow
	for rows.Next() {
		var r datasource.SchemaRow
		var nullable string
		if err := rows.Scan(&r.Database, &r.Table, &r.Column, &r.DataType, &nullable); err != nil {
			return nil, apperrors.Execution(err, "scan postgresql column")
		}
		r.Nullable = nullable == "YES"
		schemaRows = append(schemaRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Execution(err, "introspect postgresql schema")
	}
	return datasource.BuildSchema(schemaRows, NormalizeType), nil
}

func (c *Connector) ValidateQuery(ctx context.Context, sqlQuery string) models.ValidationResult {
	pool, err := c.getPool()
	if err != nil {
		return models.ValidationResult{IsValid: false, Error: err.Error()}
	}
	normalized, err := sqlguard.ValidateAndNormalize(sqlQuery)
	if err != nil {
		return models.ValidationResult{IsValid: false, Error: err.Error()}
	}
	if _, err := pool.Exec(ctx, "EXPLAIN "+normalized); err != nil {
		return models.ValidationResult{IsValid: false, Error: err.Error()}
	}
	return models.ValidationResult{IsValid: true}
}

func (c *Connector) GetHealth(ctx context.Context) models.HealthStatus {
	healthy := c.TestConnection(ctx)

	c.mu.RLock()
	details := map[string]any{
		"connected": c.pool != nil,
		"type":      string(models.DataSourcePostgreSQL),
		"host":      c.backend.Host,
		"database":  c.backend.Database,
	}
	if c.conn != nil {
		details["pool"] = c.conn.Stats()
	}
	c.mu.RUnlock()

	status := models.Unhealthy
	if healthy {
		status = models.Healthy
	}
	return models.HealthStatus{Status: status, LastChecked: time.Now().UTC(), Details: details}
}

// Close releases the pool lease, or closes an unmanaged pool.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool == nil {
		return nil
	}
	if c.lease != nil {
		c.lease.Release()
	} else if err := c.conn.Close(); err != nil {
		c.logger.Warn("error closing pool", logging.ErrorField(err))
	}
	c.conn, c.lease, c.pool = nil, nil, nil
	c.logger.Info("disconnected")
	return nil
}

var _ datasource.Connector = (*Connector)(nil)
