package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// SchemaRow is one column from an information_schema style listing.
type SchemaRow struct {
	Database    string
	Table       string
	Column      string
	DataType    string
	Nullable    bool
	Description string
}

// QuerySchemaRows runs a listing query returning
// (database, table, column, data_type, is_nullable) in ordinal order.
// is_nullable may be a bool or a YES/NO string.
func QuerySchemaRows(ctx context.Context, db *sql.DB, query string, args ...any) ([]SchemaRow, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var out []SchemaRow
	for rows.Next() {
		var r SchemaRow
		var nullable any
		if err := rows.Scan(&r.Database, &r.Table, &r.Column, &r.DataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		r.Nullable = parseNullable(nullable)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return out, nil
}

func parseNullable(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "YES") || strings.EqualFold(x, "true")
	case []byte:
		return strings.EqualFold(string(x), "YES")
	case int64:
		return x != 0
	default:
		return true
	}
}

// BuildSchema groups rows into databases and tables, preserving first
// appearance order, and normalizes every type with normalize.
func BuildSchema(rows []SchemaRow, normalize func(string) models.ColumnType) *models.Schema {
	schema := &models.Schema{Databases: []models.Database{}}
	dbIndex := make(map[string]int)
	tableIndex := make(map[string]map[string]int)

	for _, r := range rows {
		di, ok := dbIndex[r.Database]
		if !ok {
			di = len(schema.Databases)
			dbIndex[r.Database] = di
			tableIndex[r.Database] = make(map[string]int)
			schema.Databases = append(schema.Databases, models.Database{Name: r.Database, Tables: []models.Table{}})
		}
		db := &schema.Databases[di]
		if r.Table == "" {
			continue
		}

		ti, ok := tableIndex[r.Database][r.Table]
		if !ok {
			ti = len(db.Tables)
			tableIndex[r.Database][r.Table] = ti
			db.Tables = append(db.Tables, models.Table{Name: r.Table, Columns: []models.ColumnMetadata{}})
		}

		if r.Column == "" {
			continue
		}
		desc := r.Description
		if desc == "" {
			desc = r.DataType
		}
		db.Tables[ti].Columns = append(db.Tables[ti].Columns, models.ColumnMetadata{
			Name:        r.Column,
			Type:        normalize(r.DataType),
			Nullable:    r.Nullable,
			Description: desc,
		})
	}
	return schema
}
