package datasource

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolSettings are the per-pool limits applied by the factories below.
type PoolSettings struct {
	MaxConns        int
	MinConns        int
	MaxConnIdleTime int // seconds
}

// CreatePostgresPool parses connString and opens a pgx pool with settings applied.
func CreatePostgresPool(ctx context.Context, connString string, settings PoolSettings) (PoolConnector, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if settings.MaxConns > 0 {
		poolConfig.MaxConns = int32(settings.MaxConns)
	}
	if settings.MinConns > 0 {
		poolConfig.MinConns = int32(settings.MinConns)
	}
	if settings.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = secondsToDuration(settings.MaxConnIdleTime)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	return NewPostgresPoolWrapper(pool), nil
}

// OpenSQLPool opens a database/sql handle by driver name and applies settings.
func OpenSQLPool(driverName, dsn string, settings PoolSettings) (PoolConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	applySQLSettings(db, settings)
	return NewSQLDBPoolWrapper(db, driverName), nil
}

// OpenSQLConnectorPool wraps a driver.Connector, for drivers configured with
// functional options instead of a DSN.
func OpenSQLConnectorPool(driverName string, connector driver.Connector, settings PoolSettings) PoolConnector {
	db := sql.OpenDB(connector)
	applySQLSettings(db, settings)
	return NewSQLDBPoolWrapper(db, driverName)
}

func applySQLSettings(db *sql.DB, settings PoolSettings) {
	if settings.MaxConns > 0 {
		db.SetMaxOpenConns(settings.MaxConns)
	}
	if settings.MinConns > 0 {
		db.SetMaxIdleConns(settings.MinConns)
	}
	if settings.MaxConnIdleTime > 0 {
		db.SetConnMaxIdleTime(secondsToDuration(settings.MaxConnIdleTime))
	}
}

// GetPostgresPool extracts the pgx pool from a PoolConnector.
func GetPostgresPool(connector PoolConnector) (*pgxpool.Pool, error) {
	wrapper, ok := connector.(*PostgresPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a PostgreSQL pool wrapper")
	}
	return wrapper.GetPool(), nil
}

// GetSQLDB extracts the *sql.DB from a PoolConnector.
func GetSQLDB(connector PoolConnector) (*sql.DB, error) {
	wrapper, ok := connector.(*SQLDBPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a database/sql pool wrapper")
	}
	return wrapper.GetDB(), nil
}
