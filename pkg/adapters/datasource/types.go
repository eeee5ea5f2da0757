package datasource

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// TypeMap maps lower-cased backend type names to the shared vocabulary.
// Lookups strip precision and length suffixes, so "decimal(10,2)" finds "decimal".
type TypeMap struct {
	exact    map[string]models.ColumnType
	prefixes []prefixMapping
	fallback models.ColumnType
}

type prefixMapping struct {
	prefix string
	typ    models.ColumnType
}

// NewTypeMap builds a TypeMap. Unknown names map to fallback.
func NewTypeMap(exact map[string]models.ColumnType, fallback models.ColumnType) *TypeMap {
	return &TypeMap{exact: exact, fallback: fallback}
}

// WithPrefix maps any type name starting with prefix, checked after exact names.
func (m *TypeMap) WithPrefix(prefix string, t models.ColumnType) *TypeMap {
	m.prefixes = append(m.prefixes, prefixMapping{prefix: prefix, typ: t})
	return m
}

// Normalize maps a backend type name.
func (m *TypeMap) Normalize(dbType string) models.ColumnType {
	name := strings.ToLower(strings.TrimSpace(dbType))
	if name == "" {
		return m.fallback
	}
	if t, ok := m.exact[name]; ok {
		return t
	}
	base := name
	if i := strings.IndexAny(base, "(<"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if t, ok := m.exact[base]; ok {
		return t
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(name, p.prefix) {
			return p.typ
		}
	}
	return m.fallback
}

// InferColumnType sniffs a runtime value: nil is string, integral numbers are
// integer, other numbers float, bool boolean, time.Time timestamp, anything
// else string.
func InferColumnType(value any) models.ColumnType {
	switch v := value.(type) {
	case nil:
		return models.TypeString
	case bool:
		return models.TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, *big.Int:
		return models.TypeInteger
	case float32:
		return inferFloat(float64(v))
	case float64:
		return inferFloat(v)
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return models.TypeInteger
		}
		return models.TypeFloat
	case time.Time:
		return models.TypeTimestamp
	default:
		return models.TypeString
	}
}

func inferFloat(f float64) models.ColumnType {
	if !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) {
		return models.TypeInteger
	}
	return models.TypeFloat
}

// InferColumns derives column metadata from the first row for the given
// column order. Every inferred column is nullable.
func InferColumns(names []string, rows []map[string]any) []models.Column {
	cols := make([]models.Column, len(names))
	for i, name := range names {
		var v any
		if len(rows) > 0 {
			v = rows[0][name]
		}
		cols[i] = models.Column{Name: name, Type: InferColumnType(v), Nullable: true}
	}
	return cols
}

// NormalizeValue converts driver specific values into JSON friendly scalars.
// Byte slices become strings, big integers become int64 where they fit,
// decimals become float64 and other fmt.Stringer values such as UUIDs become
// strings. Nested lists and maps are normalized recursively with map keys
// formatted as strings.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	case []byte:
		return string(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = NormalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = NormalizeValue(item)
		}
		return out
	case interface{ Float64() float64 }:
		return x.Float64()
	case fmt.Stringer:
		return x.String()
	default:
		return normalizeReflect(v)
	}
}

// normalizeReflect handles named map and slice types and values whose
// Float64 or String methods have pointer receivers.
func normalizeReflect(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = NormalizeValue(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = NormalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Struct:
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		switch p := ptr.Interface().(type) {
		case interface{ Float64() float64 }:
			return p.Float64()
		case fmt.Stringer:
			return p.String()
		}
	}
	return v
}

// NormalizeDecimal parses textual decimals, as returned by drivers that
// keep DECIMAL values as bytes, into float64. Unparseable input falls back
// to NormalizeValue.
func NormalizeDecimal(v any) any {
	var s string
	switch x := v.(type) {
	case []byte:
		s = string(x)
	case string:
		s = x
	default:
		return NormalizeValue(v)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return s
	}
	return f
}
