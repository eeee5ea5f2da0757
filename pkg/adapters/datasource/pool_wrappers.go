package datasource

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPoolWrapper adapts *pgxpool.Pool to PoolConnector.
type PostgresPoolWrapper struct {
	pool *pgxpool.Pool
}

// NewPostgresPoolWrapper wraps pool.
func NewPostgresPoolWrapper(pool *pgxpool.Pool) *PostgresPoolWrapper {
	return &PostgresPoolWrapper{pool: pool}
}

func (w *PostgresPoolWrapper) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

func (w *PostgresPoolWrapper) Close() error {
	w.pool.Close()
	return nil
}

func (w *PostgresPoolWrapper) GetType() string {
	return "pgx"
}

func (w *PostgresPoolWrapper) Stats() map[string]any {
	s := w.pool.Stat()
	return map[string]any{
		"total_conns":    s.TotalConns(),
		"idle_conns":     s.IdleConns(),
		"acquired_conns": s.AcquiredConns(),
		"max_conns":      s.MaxConns(),
	}
}

// GetPool returns the underlying pool.
func (w *PostgresPoolWrapper) GetPool() *pgxpool.Pool {
	return w.pool
}

// SQLDBPoolWrapper adapts a database/sql handle to PoolConnector. It serves
// every database/sql driver: duckdb, mysql, sqlserver and databricks.
type SQLDBPoolWrapper struct {
	db     *sql.DB
	driver string
}

// NewSQLDBPoolWrapper wraps db opened with driver.
func NewSQLDBPoolWrapper(db *sql.DB, driver string) *SQLDBPoolWrapper {
	return &SQLDBPoolWrapper{db: db, driver: driver}
}

func (w *SQLDBPoolWrapper) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *SQLDBPoolWrapper) Close() error {
	return w.db.Close()
}

func (w *SQLDBPoolWrapper) GetType() string {
	return w.driver
}

func (w *SQLDBPoolWrapper) Stats() map[string]any {
	s := w.db.Stats()
	return map[string]any{
		"open_connections": s.OpenConnections,
		"in_use":           s.InUse,
		"idle":             s.Idle,
		"max_open":         s.MaxOpenConnections,
		"wait_count":       s.WaitCount,
	}
}

// GetDB returns the underlying handle.
func (w *SQLDBPoolWrapper) GetDB() *sql.DB {
	return w.db
}
