package sqlserver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	_ "github.com/microsoft/go-mssqldb/azuread" // registers the azuresql driver

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

var typeMap = datasource.NewTypeMap(map[string]models.ColumnType{
	"tinyint": models.TypeInteger, "smallint": models.TypeInteger, "int": models.TypeInteger,
	"bigint": models.TypeInteger,

	"float": models.TypeFloat, "real": models.TypeFloat,
	"decimal": models.TypeDecimal, "numeric": models.TypeDecimal,
	"money": models.TypeDecimal, "smallmoney": models.TypeDecimal,

	"char": models.TypeString, "varchar": models.TypeString, "nchar": models.TypeString,
	"nvarchar": models.TypeString, "text": models.TypeString, "ntext": models.TypeString,
	"uniqueidentifier": models.TypeString, "xml": models.TypeString, "sysname": models.TypeString,
	"sql_variant": models.TypeString,

	"bit":      models.TypeBoolean,
	"date":     models.TypeDate,
	"time":     models.TypeTime,
	"datetime": models.TypeTimestamp, "datetime2": models.TypeTimestamp,
	"smalldatetime": models.TypeTimestamp, "datetimeoffset": models.TypeTimestamp,

	"binary": models.TypeBinary, "varbinary": models.TypeBinary, "image": models.TypeBinary,
}, models.TypeString)

// NormalizeType maps a SQL Server type name to the shared vocabulary.
func NormalizeType(dbType string) models.ColumnType {
	return typeMap.Normalize(dbType)
}

const schemaQuery = `
	SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, DATA_TYPE, IS_NULLABLE
	FROM INFORMATION_SCHEMA.COLUMNS
	WHERE TABLE_SCHEMA NOT IN ('sys', 'INFORMATION_SCHEMA')
	ORDER BY TABLE_SCHEMA, TABLE_NAME, ORDINAL_POSITION`

type dialect struct {
	cfg *Config
}

func (d *dialect) Type() models.DataSourceType {
	return models.DataSourceSQLServer
}

func (d *dialect) OpenPool(_ context.Context, settings datasource.PoolSettings) (datasource.PoolConnector, error) {
	return datasource.OpenSQLPool(d.cfg.DriverName(), d.cfg.ConnectionString(), settings)
}

func (d *dialect) Fingerprint() string {
	return d.cfg.Fingerprint()
}

// WrapLimit bounds results with SQL Server's TOP clause.
func (d *dialect) WrapLimit(sqlQuery string, maxRows int) string {
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", maxRows, sqlQuery)
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

// ValidateSQL parses the statement with PARSEONLY on a dedicated connection
// so the session option never leaks into the pool.
func (d *dialect) ValidateSQL(ctx context.Context, db *sql.DB, sqlQuery string) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET PARSEONLY ON"); err != nil {
		return err
	}
	_, parseErr := conn.ExecContext(ctx, sqlQuery)
	if _, err := conn.ExecContext(ctx, "SET PARSEONLY OFF"); err != nil {
		// A connection stuck in parse-only mode must not go back to the pool.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	return parseErr
}

// ConvertValue decodes DECIMAL and MONEY bytes into numbers and
// UNIQUEIDENTIFIER bytes into the canonical string form.
func (d *dialect) ConvertValue(dbType string, v any) any {
	switch strings.ToUpper(dbType) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return datasource.NormalizeDecimal(v)
	case "UNIQUEIDENTIFIER":
		if b, ok := v.([]byte); ok && len(b) == 16 {
			var u mssql.UniqueIdentifier
			if err := u.Scan(b); err == nil {
				return u.String()
			}
		}
	}
	return datasource.NormalizeValue(v)
}

func (d *dialect) HealthDetails() map[string]any {
	return map[string]any{
		"host":        d.cfg.Host,
		"database":    d.cfg.Database,
		"auth_method": d.cfg.AuthMethod,
	}
}

// NewConnector creates an unconnected SQL Server connector.
func NewConnector(cfg models.ConnectionConfig, deps datasource.Deps) (*datasource.SQLConnector, error) {
	backend, err := datasource.BackendAs[Config](cfg)
	if err != nil {
		return nil, err
	}
	return datasource.NewSQLConnector(cfg, &dialect{cfg: backend}, deps), nil
}

var (
	_ datasource.QueryValidator = (*dialect)(nil)
	_ datasource.ValueConverter = (*dialect)(nil)
	_ datasource.HealthReporter = (*dialect)(nil)
)
