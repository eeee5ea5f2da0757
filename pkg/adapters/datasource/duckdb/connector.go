package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-query-engine/pkg/sql"
)

const driverName = "duckdb"

var typeMap = datasource.NewTypeMap(map[string]models.ColumnType{
	"tinyint": models.TypeInteger, "smallint": models.TypeInteger, "integer": models.TypeInteger,
	"int": models.TypeInteger, "bigint": models.TypeInteger, "hugeint": models.TypeInteger,
	"utinyint": models.TypeInteger, "usmallint": models.TypeInteger, "uinteger": models.TypeInteger,
	"ubigint": models.TypeInteger, "uhugeint": models.TypeInteger,
	"int1": models.TypeInteger, "int2": models.TypeInteger, "int4": models.TypeInteger, "int8": models.TypeInteger,

	"double": models.TypeFloat, "real": models.TypeFloat, "float": models.TypeFloat,
	"float4": models.TypeFloat, "float8": models.TypeFloat,
	"decimal": models.TypeDecimal, "numeric": models.TypeDecimal,

	"varchar": models.TypeString, "text": models.TypeString, "string": models.TypeString,
	"char": models.TypeString, "bpchar": models.TypeString, "uuid": models.TypeString,
	"enum": models.TypeString, "interval": models.TypeString,

	"boolean": models.TypeBoolean, "bool": models.TypeBoolean,
	"date": models.TypeDate,
	"json": models.TypeJSON,
	"blob": models.TypeBinary, "bytea": models.TypeBinary, "bit": models.TypeBinary,
}, models.TypeString).
	WithPrefix("timestamp", models.TypeTimestamp).
	WithPrefix("time", models.TypeTime)

// NormalizeType maps a DuckDB type name to the shared vocabulary.
func NormalizeType(dbType string) models.ColumnType {
	name := strings.ToLower(strings.TrimSpace(dbType))
	switch {
	case strings.HasSuffix(name, "]"), strings.HasPrefix(name, "list"), strings.HasPrefix(name, "array"):
		return models.TypeArray
	case strings.HasPrefix(name, "struct"), strings.HasPrefix(name, "map"), strings.HasPrefix(name, "union"):
		return models.TypeObject
	}
	return typeMap.Normalize(name)
}

const schemaQuery = `
	SELECT table_schema, table_name, column_name, data_type, is_nullable
	FROM information_schema.columns
	WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
	ORDER BY table_schema, table_name, ordinal_position`

type dialect struct {
	cfg *Config
}

func (d *dialect) Type() models.DataSourceType {
	return models.DataSourceDuckDB
}

// dsn carries read-only mode and settings as database open options.
func (d *dialect) dsn() string {
	path := d.cfg.DatabasePath
	if d.cfg.IsMemory() {
		path = ""
	}
	opts := url.Values{}
	if d.cfg.ReadOnly {
		opts.Set("access_mode", "READ_ONLY")
	}
	for k, v := range d.cfg.Settings {
		opts.Set(k, v)
	}
	if len(opts) == 0 {
		return path
	}
	return path + "?" + opts.Encode()
}

func (d *dialect) OpenPool(_ context.Context, settings datasource.PoolSettings) (datasource.PoolConnector, error) {
	return datasource.OpenSQLPool(driverName, d.dsn(), settings)
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
	for i := range rows {
		rows[i].Description = rows[i].DataType + " column"
	}
	return datasource.BuildSchema(rows, NormalizeType), nil
}

// AfterConnect loads extensions and materializes preload tables. Both are
// database wide, so running them again on a shared pool is harmless.
func (d *dialect) AfterConnect(ctx context.Context, db *sql.DB) error {
	for _, ext := range d.cfg.Extensions {
		if _, err := db.ExecContext(ctx, "INSTALL "+ext); err != nil {
			return fmt.Errorf("install extension %s: %w", ext, err)
		}
		if _, err := db.ExecContext(ctx, "LOAD "+ext); err != nil {
			return fmt.Errorf("load extension %s: %w", ext, err)
		}
	}
	for _, spec := range d.cfg.Preload {
		if _, err := db.ExecContext(ctx, loadStatement(spec)); err != nil {
			return fmt.Errorf("preload table %s from %s: %w", spec.Table, spec.Path, err)
		}
	}
	return nil
}

func (d *dialect) HealthDetails() map[string]any {
	path := d.cfg.DatabasePath
	if path == "" {
		path = MemoryPath
	}
	return map[string]any{
		"database_path": path,
		"read_only":     d.cfg.ReadOnly,
	}
}

// Connector is the DuckDB connector. Beyond the shared database/sql
// behaviour it can materialize CSV, JSON and Parquet files as tables.
type Connector struct {
	*datasource.SQLConnector
	cfg    *Config
	logger *zap.Logger
}

// NewConnector creates an unconnected DuckDB connector.
func NewConnector(cfg models.ConnectionConfig, deps datasource.Deps) (*Connector, error) {
	backend, err := datasource.BackendAs[Config](cfg)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Connector{
		SQLConnector: datasource.NewSQLConnector(cfg, &dialect{cfg: backend}, deps),
		cfg:          backend,
		logger:       deps.Logger,
	}, nil
}

// LoadCSV creates or replaces table from a CSV file.
func (c *Connector) LoadCSV(ctx context.Context, table, path string, opts CSVOptions) error {
	return c.load(ctx, LoadSpec{Table: table, Path: path, Format: FormatCSV, CSV: opts})
}

// LoadJSON creates or replaces table from a JSON or newline delimited JSON file.
func (c *Connector) LoadJSON(ctx context.Context, table, path string) error {
	return c.load(ctx, LoadSpec{Table: table, Path: path, Format: FormatJSON})
}

// LoadParquet creates or replaces table from a Parquet file.
func (c *Connector) LoadParquet(ctx context.Context, table, path string) error {
	return c.load(ctx, LoadSpec{Table: table, Path: path, Format: FormatParquet})
}

func (c *Connector) load(ctx context.Context, spec LoadSpec) error {
	if c.cfg.ReadOnly {
		return apperrors.Validation("database %s is read only", c.cfg.DatabasePath)
	}
	if spec.Table == "" || spec.Path == "" {
		return apperrors.Validation("table and path are required")
	}
	db, err := c.DB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, loadStatement(spec)); err != nil {
		return apperrors.Execution(err, "load %s into table %s", spec.Format, spec.Table)
	}
	c.logger.Info("loaded table from file",
		zap.String("table", spec.Table),
		zap.String("format", spec.Format),
	)
	return nil
}

func loadStatement(spec LoadSpec) string {
	var source string
	switch spec.Format {
	case FormatJSON:
		source = fmt.Sprintf("read_json_auto(%s)", sqlguard.QuoteString(spec.Path))
	case FormatParquet:
		source = fmt.Sprintf("read_parquet(%s)", sqlguard.QuoteString(spec.Path))
	default:
		opts := spec.CSV
		if opts.Delimiter == "" {
			opts.Delimiter = ","
		}
		source = fmt.Sprintf("read_csv_auto(%s, delim=%s, header=%t, skip=%d)",
			sqlguard.QuoteString(spec.Path), sqlguard.QuoteString(opts.Delimiter), opts.Header, opts.SkipRows)
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", quoteIdent(spec.Table), source)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var (
	_ datasource.Connector      = (*Connector)(nil)
	_ datasource.ConnectHook    = (*dialect)(nil)
	_ datasource.HealthReporter = (*dialect)(nil)
)
