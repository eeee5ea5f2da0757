package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

const driverName = "mysql"

var typeMap = datasource.NewTypeMap(map[string]models.ColumnType{
	"tinyint": models.TypeInteger, "smallint": models.TypeInteger, "mediumint": models.TypeInteger,
	"int": models.TypeInteger, "integer": models.TypeInteger, "bigint": models.TypeInteger,
	"year": models.TypeInteger,

	"float": models.TypeFloat, "double": models.TypeFloat, "real": models.TypeFloat,
	"decimal": models.TypeDecimal, "numeric": models.TypeDecimal,

	"char": models.TypeString, "varchar": models.TypeString, "text": models.TypeString,
	"tinytext": models.TypeString, "mediumtext": models.TypeString, "longtext": models.TypeString,
	"enum": models.TypeString, "set": models.TypeString,

	"bool": models.TypeBoolean, "boolean": models.TypeBoolean,
	"date":      models.TypeDate,
	"time":      models.TypeTime,
	"datetime":  models.TypeTimestamp,
	"timestamp": models.TypeTimestamp,
	"json":      models.TypeJSON,

	"binary": models.TypeBinary, "varbinary": models.TypeBinary, "bit": models.TypeBinary,
	"blob": models.TypeBinary, "tinyblob": models.TypeBinary, "mediumblob": models.TypeBinary,
	"longblob": models.TypeBinary,
}, models.TypeString).
	WithPrefix("unsigned", models.TypeInteger)

// NormalizeType maps a MySQL type name, from information_schema or the
// driver, to the shared vocabulary.
func NormalizeType(dbType string) models.ColumnType {
	return typeMap.Normalize(dbType)
}

const schemaQuery = `
	SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, DATA_TYPE, IS_NULLABLE
	FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
	ORDER BY TABLE_SCHEMA, TABLE_NAME, ORDINAL_POSITION`

type dialect struct {
	cfg *Config
}

func (d *dialect) Type() models.DataSourceType {
	return models.DataSourceMySQL
}

func (d *dialect) OpenPool(_ context.Context, settings datasource.PoolSettings) (datasource.PoolConnector, error) {
	connector, err := mysql.NewConnector(d.cfg.DriverConfig())
	if err != nil {
		return nil, fmt.Errorf("create mysql connector: %w", err)
	}
	return datasource.OpenSQLConnectorPool(driverName, connector, settings), nil
}

func (d *dialect) Fingerprint() string {
	return d.cfg.Fingerprint()
}

func (d *dialect) WrapLimit(sqlQuery string, maxRows int) string {
	return datasource.LimitWrapper(sqlQuery, maxRows)
}

func (d *dialect) NormalizeType(dbType string) models.ColumnType {
	return NormalizeType(dbType)
}

func (d *dialect) LoadSchema(ctx context.Context, db *sql.DB) (*models.Schema, error) {
	rows, err := datasource.QuerySchemaRows(ctx, db, schemaQuery)
	if err != nil {
		return nil, err
	}
	return datasource.BuildSchema(rows, NormalizeType), nil
}

// ConvertValue parses DECIMAL columns, which the driver returns as bytes.
func (d *dialect) ConvertValue(dbType string, v any) any {
	if NormalizeType(dbType) == models.TypeDecimal {
		return datasource.NormalizeDecimal(v)
	}
	return datasource.NormalizeValue(v)
}

func (d *dialect) HealthDetails() map[string]any {
	return map[string]any{
		"host":     d.cfg.Host,
		"database": d.cfg.Database,
	}
}

// NewConnector creates an unconnected MySQL connector.
func NewConnector(cfg models.ConnectionConfig, deps datasource.Deps) (*datasource.SQLConnector, error) {
	backend, err := datasource.BackendAs[Config](cfg)
	if err != nil {
		return nil, err
	}
	return datasource.NewSQLConnector(cfg, &dialect{cfg: backend}, deps), nil
}

var (
	_ datasource.ValueConverter = (*dialect)(nil)
	_ datasource.HealthReporter = (*dialect)(nil)
)
