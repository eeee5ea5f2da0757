package databricks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	dbsql "github.com/databricks/databricks-sql-go"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

const driverName = "databricks"

// NormalizeType maps a Databricks type name onto the coarse vocabulary used
// for Databricks sources. Parameters such as "<string>" or "(10,2)" are
// ignored and checks run in order.
func NormalizeType(dbType string) models.ColumnType {
	t := strings.ToLower(strings.TrimSpace(dbType))
	if i := strings.IndexAny(t, "<("); i >= 0 {
		t = t[:i]
	}
	switch {
	case strings.Contains(t, "int"):
		return models.TypeInteger
	case strings.Contains(t, "decimal"), strings.Contains(t, "double"), strings.Contains(t, "float"):
		return models.TypeNumber
	case strings.Contains(t, "string"), strings.Contains(t, "char"):
		return models.TypeString
	case strings.Contains(t, "boolean"):
		return models.TypeBoolean
	case strings.Contains(t, "timestamp"), strings.Contains(t, "date"):
		return models.TypeDatetime
	case strings.Contains(t, "array"):
		return models.TypeArray
	case strings.Contains(t, "struct"), strings.Contains(t, "map"):
		return models.TypeObject
	default:
		return models.TypeString
	}
}

type dialect struct {
	cfg *Config
}

func (d *dialect) Type() models.DataSourceType {
	return models.DataSourceDatabricks
}

func (d *dialect) connectorOptions() []dbsql.ConnOption {
	opts := []dbsql.ConnOption{
		dbsql.WithServerHostname(d.cfg.ServerHostname),
		dbsql.WithPort(d.cfg.Port),
		dbsql.WithHTTPPath(d.cfg.HTTPPath),
		dbsql.WithAccessToken(d.cfg.AccessToken),
		dbsql.WithMaxRows(d.cfg.FetchSize),
	}
	if d.cfg.Catalog != "" || d.cfg.Schema != "" {
		opts = append(opts, dbsql.WithInitialNamespace(d.cfg.Catalog, d.cfg.Schema))
	}
	if d.cfg.Timeout > 0 {
		opts = append(opts, dbsql.WithTimeout(d.cfg.Timeout))
	}
	return opts
}

func (d *dialect) OpenPool(_ context.Context, settings datasource.PoolSettings) (datasource.PoolConnector, error) {
	connector, err := dbsql.NewConnector(d.connectorOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create databricks connector: %w", err)
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

// LoadSchema walks SHOW DATABASES, SHOW TABLES IN and DESCRIBE. A column is
// nullable unless its DESCRIBE comment says NOT NULL.
func (d *dialect) LoadSchema(ctx context.Context, db *sql.DB) (*models.Schema, error) {
	databases, err := queryStrings(ctx, db, "SHOW DATABASES", 0)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}

	var rows []datasource.SchemaRow
	for _, database := range databases {
		tables, err := queryStrings(ctx, db, "SHOW TABLES IN "+quoteIdent(database), 1)
		if err != nil {
			return nil, fmt.Errorf("list tables in %s: %w", database, err)
		}
		if len(tables) == 0 {
			rows = append(rows, datasource.SchemaRow{Database: database})
			continue
		}
		for _, table := range tables {
			cols, err := describeTable(ctx, db, database, table)
			if err != nil {
				return nil, fmt.Errorf("describe %s.%s: %w", database, table, err)
			}
			if len(cols) == 0 {
				rows = append(rows, datasource.SchemaRow{Database: database, Table: table})
			}
			rows = append(rows, cols...)
		}
	}
	return datasource.BuildSchema(rows, NormalizeType), nil
}

func describeTable(ctx context.Context, db *sql.DB, database, table string) ([]datasource.SchemaRow, error) {
	records, err := queryRecords(ctx, db, "DESCRIBE "+quoteIdent(database)+"."+quoteIdent(table))
	if err != nil {
		return nil, err
	}
	var out []datasource.SchemaRow
	for _, rec := range records {
		name := field(rec, 0)
		// Partition and detail sections follow the first "#" row.
		if strings.HasPrefix(name, "#") {
			break
		}
		if name == "" {
			continue
		}
		out = append(out, datasource.SchemaRow{
			Database: database,
			Table:    table,
			Column:   name,
			DataType: field(rec, 1),
			Nullable: !strings.Contains(strings.ToUpper(field(rec, 2)), "NOT NULL"),
		})
	}
	return out, nil
}

// queryStrings returns column idx of every row, skipping NULL and blank values.
func queryStrings(ctx context.Context, db *sql.DB, query string, idx int) ([]string, error) {
	records, err := queryRecords(ctx, db, query)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, rec := range records {
		if s := field(rec, idx); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func queryRecords(ctx context.Context, db *sql.DB, query string) ([][]sql.NullString, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]sql.NullString
	for rows.Next() {
		rec := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range rec {
			ptrs[i] = &rec[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func field(rec []sql.NullString, idx int) string {
	if idx >= len(rec) || !rec[idx].Valid {
		return ""
	}
	return strings.TrimSpace(rec[idx].String)
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *dialect) HealthDetails() map[string]any {
	return map[string]any{
		"server_hostname": d.cfg.ServerHostname,
		"http_path":       d.cfg.HTTPPath,
		"catalog":         d.cfg.Catalog,
	}
}

// NewConnector creates an unconnected Databricks connector.
func NewConnector(cfg models.ConnectionConfig, deps datasource.Deps) (*datasource.SQLConnector, error) {
	backend, err := datasource.BackendAs[Config](cfg)
	if err != nil {
		return nil, err
	}
	return datasource.NewSQLConnector(cfg, &dialect{cfg: backend}, deps), nil
}

var _ datasource.HealthReporter = (*dialect)(nil)
