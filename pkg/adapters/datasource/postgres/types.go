package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

var typeMap = datasource.NewTypeMap(map[string]models.ColumnType{
	"int2": models.TypeInteger, "int4": models.TypeInteger, "int8": models.TypeInteger,
	"smallint": models.TypeInteger, "integer": models.TypeInteger, "bigint": models.TypeInteger,
	"serial": models.TypeInteger, "bigserial": models.TypeInteger, "oid": models.TypeInteger,

	"float4": models.TypeFloat, "float8": models.TypeFloat, "real": models.TypeFloat,
	"double precision": models.TypeFloat,
	"numeric":          models.TypeDecimal, "decimal": models.TypeDecimal, "money": models.TypeDecimal,

	"text": models.TypeString, "varchar": models.TypeString, "character varying": models.TypeString,
	"bpchar": models.TypeString, "char": models.TypeString, "character": models.TypeString,
	"name": models.TypeString, "uuid": models.TypeString, "xml": models.TypeString,
	"citext": models.TypeString, "interval": models.TypeString,

	"bool": models.TypeBoolean, "boolean": models.TypeBoolean,
	"date": models.TypeDate,
	"json": models.TypeJSON, "jsonb": models.TypeJSON,
	"bytea": models.TypeBinary,
	"array": models.TypeArray,
}, models.TypeString).
	WithPrefix("timestamp", models.TypeTimestamp).
	WithPrefix("time", models.TypeTime)

// NormalizeType maps a PostgreSQL type name, as reported by
// information_schema or pgTypeNameFromOID, to the shared vocabulary.
func NormalizeType(dbType string) models.ColumnType {
	if n := len(dbType); n > 2 && dbType[n-2:] == "[]" {
		return models.TypeArray
	}
	return typeMap.Normalize(dbType)
}

// pgTypeNameFromOID maps PostgreSQL type OIDs to type names.
// This covers the most common types; unknown types return "UNKNOWN".
func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case pgtype.BoolOID:
		return "BOOL"
	case pgtype.ByteaOID:
		return "BYTEA"
	case pgtype.QCharOID:
		return "CHAR"
	case pgtype.NameOID:
		return "NAME"
	case pgtype.Int8OID:
		return "INT8"
	case pgtype.Int2OID:
		return "INT2"
	case pgtype.Int4OID:
		return "INT4"
	case pgtype.TextOID:
		return "TEXT"
	case pgtype.OIDOID:
		return "OID"
	case pgtype.JSONOID:
		return "JSON"
	case 142:
		return "XML"
	case pgtype.Float4OID:
		return "FLOAT4"
	case pgtype.Float8OID:
		return "FLOAT8"
	case 790:
		return "MONEY"
	case pgtype.BPCharOID:
		return "BPCHAR"
	case pgtype.VarcharOID:
		return "VARCHAR"
	case pgtype.DateOID:
		return "DATE"
	case pgtype.TimeOID:
		return "TIME"
	case pgtype.TimestampOID:
		return "TIMESTAMP"
	case pgtype.TimestamptzOID:
		return "TIMESTAMPTZ"
	case pgtype.IntervalOID:
		return "INTERVAL"
	case 1266:
		return "TIMETZ"
	case pgtype.NumericOID:
		return "NUMERIC"
	case pgtype.UUIDOID:
		return "UUID"
	case pgtype.JSONBOID:
		return "JSONB"
	case pgtype.BoolArrayOID:
		return "BOOL[]"
	case pgtype.Int2ArrayOID:
		return "INT2[]"
	case pgtype.Int4ArrayOID:
		return "INT4[]"
	case pgtype.Int8ArrayOID:
		return "INT8[]"
	case pgtype.TextArrayOID:
		return "TEXT[]"
	case pgtype.VarcharArrayOID:
		return "VARCHAR[]"
	case pgtype.Float4ArrayOID:
		return "FLOAT4[]"
	case pgtype.Float8ArrayOID:
		return "FLOAT8[]"
	case pgtype.UUIDArrayOID:
		return "UUID[]"
	case pgtype.JSONBArrayOID:
		return "JSONB[]"
	default:
		return "UNKNOWN"
	}
}

// pgValue converts values decoded by pgx into JSON friendly forms.
func pgValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Time:
		if !x.Valid {
			return nil
		}
		return formatClock(time.Duration(x.Microseconds) * time.Microsecond)
	case pgtype.Interval:
		if !x.Valid {
			return nil
		}
		return fmt.Sprintf("%d mons %d days %s", x.Months, x.Days,
			formatClock(time.Duration(x.Microseconds)*time.Microsecond))
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = pgValue(item)
		}
		return out
	default:
		return datasource.NormalizeValue(v)
	}
}

func formatClock(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	if us := d / time.Microsecond; us > 0 {
		return fmt.Sprintf("%s%02d:%02d:%02d.%06d", sign, h, m, s, us)
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
}
