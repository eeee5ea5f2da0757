package sql

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// namedParamRegex matches $name tokens. Positional $1 placeholders are not names.
var namedParamRegex = regexp.MustCompile(`\$([A-Za-z_]\w*)`)

// ExtractNamedParameters lists $name tokens outside string literals in order
// of first appearance.
func ExtractNamedParameters(sqlQuery string) []string {
	seen := make(map[string]bool)
	var names []string
	forEachCodeSegment(sqlQuery, func(segment string) string {
		for _, m := range namedParamRegex.FindAllStringSubmatch(segment, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
		return segment
	})
	return names
}

// SubstituteNamedParameters replaces $name tokens with SQL literals for the
// supplied values. Tokens inside quoted literals are left alone, as are tokens
// with no supplied value. Each token is matched as a whole identifier so $id
// never rewrites part of $id2.
func SubstituteNamedParameters(sqlQuery string, params map[string]any) (string, error) {
	if len(params) == 0 {
		return sqlQuery, nil
	}

	literals := make(map[string]string, len(params))
	for name, value := range params {
		lit, err := FormatLiteral(value)
		if err != nil {
			return "", fmt.Errorf("parameter %s: %w", name, err)
		}
		literals[name] = lit
	}

	return forEachCodeSegment(sqlQuery, func(segment string) string {
		return namedParamRegex.ReplaceAllStringFunc(segment, func(token string) string {
			if lit, ok := literals[token[1:]]; ok {
				return lit
			}
			return token
		})
	}), nil
}

// FormatLiteral renders a scalar as a SQL literal.
func FormatLiteral(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "NULL", nil
	case string:
		return QuoteString(v), nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(v), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case time.Time:
		return QuoteString(v.Format(time.RFC3339Nano)), nil
	case fmt.Stringer:
		return QuoteString(v.String()), nil
	default:
		return "", fmt.Errorf("unsupported parameter type %T", value)
	}
}

// QuoteString wraps s in single quotes, doubling embedded quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite number %v", f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// forEachCodeSegment applies fn to the parts of sqlQuery outside single
// quoted literals and reassembles the result.
func forEachCodeSegment(sqlQuery string, fn func(string) string) string {
	var b strings.Builder
	b.Grow(len(sqlQuery))

	start := 0
	inString := false
	for i := 0; i < len(sqlQuery); i++ {
		if sqlQuery[i] != '\'' {
			continue
		}
		if inString {
			if i+1 < len(sqlQuery) && sqlQuery[i+1] == '\'' {
				i++
				continue
			}
			b.WriteString(sqlQuery[start : i+1])
			start = i + 1
			inString = false
		} else {
			b.WriteString(fn(sqlQuery[start:i]))
			start = i
			inString = true
		}
	}
	if inString {
		b.WriteString(sqlQuery[start:])
	} else {
		b.WriteString(fn(sqlQuery[start:]))
	}
	return b.String()
}
