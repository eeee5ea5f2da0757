package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/logging"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-query-engine/pkg/sql"
)

// SQLDialect supplies the backend specific parts of a database/sql connector.
type SQLDialect interface {
	Type() models.DataSourceType
	// OpenPool opens the driver pool. It must not ping; the caller does.
	OpenPool(ctx context.Context, settings PoolSettings) (PoolConnector, error)
	// Fingerprint identifies the connection settings; a change forces a new pool.
	Fingerprint() string
	// WrapLimit bounds sqlQuery to maxRows (> 0).
	WrapLimit(sqlQuery string, maxRows int) string
	NormalizeType(dbType string) models.ColumnType
	LoadSchema(ctx context.Context, db *sql.DB) (*models.Schema, error)
}

// QueryValidator overrides the default EXPLAIN based validation.
type QueryValidator interface {
	ValidateSQL(ctx context.Context, db *sql.DB, sqlQuery string) error
}

// ConnectHook runs after the pool is reachable, for session setup such as
// extensions and settings. It must be idempotent because pools are shared
// across re-registration.
type ConnectHook interface {
	AfterConnect(ctx context.Context, db *sql.DB) error
}

// ValueConverter replaces NormalizeValue for dialects whose driver returns
// raw bytes for types such as DECIMAL. dbType is the driver's type name.
type ValueConverter interface {
	ConvertValue(dbType string, v any) any
}

// HealthReporter adds dialect diagnostics to GetHealth details.
type HealthReporter interface {
	HealthDetails() map[string]any
}

// LimitWrapper is the LIMIT wrapping most dialects use.
func LimitWrapper(sqlQuery string, maxRows int) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, maxRows)
}

// SQLConnector implements Connector over database/sql for any SQLDialect.
type SQLConnector struct {
	cfg     models.ConnectionConfig
	dialect SQLDialect
	deps    Deps
	logger  *zap.Logger

	mu     sync.RWMutex
	lease  *Lease
	pool   PoolConnector
	db     *sql.DB
	closed bool
}

// NewSQLConnector creates an unconnected connector.
func NewSQLConnector(cfg models.ConnectionConfig, dialect SQLDialect, deps Deps) *SQLConnector {
	deps = deps.withDefaults()
	return &SQLConnector{
		cfg:     cfg,
		dialect: dialect,
		deps:    deps,
		logger:  deps.Logger,
	}
}

func (c *SQLConnector) Type() models.DataSourceType {
	return c.dialect.Type()
}

// Config returns the connection config the connector was built with.
func (c *SQLConnector) Config() models.ConnectionConfig {
	return c.cfg
}

// Connect opens (or shares) the pool and runs the dialect's connect hook.
func (c *SQLConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}
	c.closed = false

	start := time.Now()
	pool, lease, err := c.openPool(ctx)
	if err != nil {
		c.logger.Error("failed to connect", logging.ErrorField(err))
		return apperrors.Connection(err, "connect to %s data source %s", c.dialect.Type(), c.cfg.ID)
	}

	db, err := GetSQLDB(pool)
	if err == nil {
		if hook, ok := c.dialect.(ConnectHook); ok {
			err = hook.AfterConnect(ctx, db)
		}
	}
	if err != nil {
		c.releasePool(pool, lease)
		c.logger.Error("failed to initialize connection", logging.ErrorField(err))
		return apperrors.Connection(err, "initialize %s data source %s", c.dialect.Type(), c.cfg.ID)
	}

	c.pool, c.lease, c.db = pool, lease, db
	c.logger.Info("connected", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (c *SQLConnector) openPool(ctx context.Context) (PoolConnector, *Lease, error) {
	if mgr := c.deps.ConnMgr; mgr != nil {
		lease, err := mgr.Acquire(ctx, c.cfg.TenantID, c.cfg.ID, c.dialect.Fingerprint(), c.dialect.OpenPool)
		if err != nil {
			return nil, nil, err
		}
		return lease.Pool(), lease, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	pool, err := c.dialect.OpenPool(pingCtx, PoolSettings{MaxConns: DefaultPoolMaxConns, MinConns: DefaultPoolMinConns})
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(pingCtx); err != nil {
		_ = pool.Close()
		return nil, nil, err
	}
	return pool, nil, nil
}

func (c *SQLConnector) releasePool(pool PoolConnector, lease *Lease) {
	if lease != nil {
		lease.Release()
		return
	}
	if pool != nil {
		if err := pool.Close(); err != nil {
			c.logger.Warn("error closing pool", logging.ErrorField(err))
		}
	}
}

// DB returns the live handle, or a connection error before Connect.
func (c *SQLConnector) DB() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, apperrors.Connection(nil, "%s data source %s is not connected", c.dialect.Type(), c.cfg.ID)
	}
	return c.db, nil
}

func (c *SQLConnector) TestConnection(ctx context.Context) bool {
	db, err := c.DB()
	if err != nil {
		return false
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		c.logger.Debug("connection test failed", logging.ErrorField(err))
		return false
	}
	return one == 1
}

// PrepareSQL substitutes parameters and enforces the single statement rule.
func PrepareSQL(sqlQuery string, params map[string]any) (string, error) {
	substituted, err := sqlguard.SubstituteNamedParameters(sqlQuery, params)
	if err != nil {
		return "", apperrors.Invalid(err)
	}
	normalized, err := sqlguard.ValidateAndNormalize(substituted)
	if err != nil {
		return "", apperrors.Invalid(err)
	}
	return normalized, nil
}

// WithTimeout applies ec.Timeout to ctx when set.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// ExecutionError classifies a backend failure, reporting deadline expiry as a timeout.
func ExecutionError(ctx context.Context, err error, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Execution(context.DeadlineExceeded, "query timed out after %s", timeout)
	}
	return apperrors.Execution(err, "query failed")
}

func (c *SQLConnector) ExecuteQuery(ctx context.Context, sqlQuery string, ec ExecutionContext) (*ExecutionResult, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}

	prepared, err := PrepareSQL(sqlQuery, ec.Parameters)
	if err != nil {
		return nil, err
	}
	if ec.MaxRows > 0 {
		prepared = c.dialect.WrapLimit(prepared, ec.MaxRows)
	}

	qctx, cancel := WithTimeout(ctx, ec.Timeout)
	defer cancel()

	start := time.Now()
	result, err := c.query(qctx, db, prepared)
	elapsed := time.Since(start)
	c.deps.Metrics.ObserveConnector(string(c.dialect.Type()), elapsed)

	if err != nil {
		c.logger.Warn("query failed",
			logging.QueryField(prepared),
			zap.Duration("elapsed", elapsed),
			logging.ErrorField(err),
		)
		return nil, ExecutionError(qctx, err, ec.Timeout)
	}

	result.Metrics = QueryMetrics{
		ExecutionTime: elapsed,
		RowsReturned:  len(result.Rows),
	}
	c.logger.Debug("query executed",
		logging.QueryField(prepared),
		zap.Duration("elapsed", elapsed),
		zap.Int("rows", len(result.Rows)),
	)
	return result, nil
}

func (c *SQLConnector) query(ctx context.Context, db *sql.DB, q string) (*ExecutionResult, error) {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	names := make([]string, len(colTypes))
	dbTypes := make([]string, len(colTypes))
	for i, ct := range colTypes {
		names[i] = ct.Name()
		dbTypes[i] = ct.DatabaseTypeName()
	}
	convert := func(_ string, v any) any { return NormalizeValue(v) }
	if vc, ok := c.dialect.(ValueConverter); ok {
		convert = vc.ConvertValue
	}

	resultRows := make([]map[string]any, 0)
	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			row[name] = convert(dbTypes[i], values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	columns := make([]models.Column, len(colTypes))
	for i, ct := range colTypes {
		col := models.Column{Name: names[i], Nullable: true}
		if dbTypes[i] != "" {
			col.Type = c.dialect.NormalizeType(dbTypes[i])
		} else if len(resultRows) > 0 {
			col.Type = InferColumnType(resultRows[0][names[i]])
		} else {
			col.Type = models.TypeString
		}
		if nullable, ok := ct.Nullable(); ok {
			col.Nullable = nullable
		}
		columns[i] = col
	}

	return &ExecutionResult{Columns: columns, Rows: resultRows}, nil
}

func (c *SQLConnector) GetSchema(ctx context.Context) (*models.Schema, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	schema, err := c.dialect.LoadSchema(ctx, db)
	if err != nil {
		c.logger.Error("schema introspection failed", logging.ErrorField(err))
		return nil, apperrors.Execution(err, "introspect %s schema", c.dialect.Type())
	}
	c.logger.Debug("schema introspected",
		zap.Int("databases", len(schema.Databases)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return schema, nil
}

func (c *SQLConnector) ValidateQuery(ctx context.Context, sqlQuery string) models.ValidationResult {
	db, err := c.DB()
	if err != nil {
		return models.ValidationResult{IsValid: false, Error: err.Error()}
	}
	prepared, err := sqlguard.ValidateAndNormalize(sqlQuery)
	if err != nil {
		return models.ValidationResult{IsValid: false, Error: err.Error()}
	}

	if v, ok := c.dialect.(QueryValidator); ok {
		err = v.ValidateSQL(ctx, db, prepared)
	} else {
		err = ExplainValidate(ctx, db, prepared)
	}
	if err != nil {
		return models.ValidationResult{IsValid: false, Error: err.Error()}
	}
	return models.ValidationResult{IsValid: true}
}

// ExplainValidate runs EXPLAIN and discards the plan.
func ExplainValidate(ctx context.Context, db *sql.DB, sqlQuery string) error {
	rows, err := db.QueryContext(ctx, "EXPLAIN "+sqlQuery)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

func (c *SQLConnector) GetHealth(ctx context.Context) models.HealthStatus {
	healthy := c.TestConnection(ctx)

	c.mu.RLock()
	details := map[string]any{
		"connected": c.db != nil,
		"type":      string(c.dialect.Type()),
	}
	if c.pool != nil {
		details["driver"] = c.pool.GetType()
		details["pool"] = c.pool.Stats()
	}
	c.mu.RUnlock()

	if r, ok := c.dialect.(HealthReporter); ok {
		for k, v := range r.HealthDetails() {
			details[k] = v
		}
	}

	status := models.Unhealthy
	if healthy {
		status = models.Healthy
	}
	return models.HealthStatus{Status: status, LastChecked: time.Now().UTC(), Details: details}
}

// Close releases the pool. Cleanup errors are logged, never returned.
func (c *SQLConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.db == nil {
		c.closed = true
		return nil
	}
	c.releasePool(c.pool, c.lease)
	c.pool, c.lease, c.db = nil, nil, nil
	c.closed = true
	c.logger.Info("disconnected")
	return nil
}

var _ Connector = (*SQLConnector)(nil)
