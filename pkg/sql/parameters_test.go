package sql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteNamedParameters(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		sql      string
		params   map[string]any
		expected string
	}{
		{
			name:     "no params",
			sql:      "SELECT * FROM t WHERE a = $a",
			params:   nil,
			expected: "SELECT * FROM t WHERE a = $a",
		},
		{
			name:     "string is quoted and escaped",
			sql:      "SELECT * FROM t WHERE name = $name",
			params:   map[string]any{"name": "O'Brien"},
			expected: "SELECT * FROM t WHERE name = 'O''Brien'",
		},
		{
			name:     "numbers and bools",
			sql:      "SELECT * FROM t WHERE n > $n AND f < $f AND active = $active",
			params:   map[string]any{"n": 10, "f": 2.5, "active": true},
			expected: "SELECT * FROM t WHERE n > 10 AND f < 2.5 AND active = TRUE",
		},
		{
			name:     "nil becomes NULL",
			sql:      "SELECT coalesce($x, 1)",
			params:   map[string]any{"x": nil},
			expected: "SELECT coalesce(NULL, 1)",
		},
		{
			name:     "time is RFC3339",
			sql:      "SELECT * FROM t WHERE ts >= $since",
			params:   map[string]any{"since": ts},
			expected: "SELECT * FROM t WHERE ts >= '2024-01-15T10:30:00Z'",
		},
		{
			name:     "prefix names do not collide",
			sql:      "SELECT $id, $id2",
			params:   map[string]any{"id": 1, "id2": 2},
			expected: "SELECT 1, 2",
		},
		{
			name:     "repeated name",
			sql:      "SELECT * FROM t WHERE a = $v OR b = $v",
			params:   map[string]any{"v": "x"},
			expected: "SELECT * FROM t WHERE a = 'x' OR b = 'x'",
		},
		{
			name:     "token in literal untouched",
			sql:      "SELECT '$v costs', $v",
			params:   map[string]any{"v": 5},
			expected: "SELECT '$v costs', 5",
		},
		{
			name:     "unsupplied token untouched",
			sql:      "SELECT $a, $b",
			params:   map[string]any{"a": 1},
			expected: "SELECT 1, $b",
		},
		{
			name:     "positional placeholders untouched",
			sql:      "SELECT $1, $a",
			params:   map[string]any{"a": 1},
			expected: "SELECT $1, 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SubstituteNamedParameters(tt.sql, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSubstituteNamedParameters_RejectsNonScalar(t *testing.T) {
	_, err := SubstituteNamedParameters("SELECT $a", map[string]any{"a": []int{1, 2}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parameter a")
}

func TestExtractNamedParameters(t *testing.T) {
	got := ExtractNamedParameters("SELECT * FROM t WHERE a = $b AND c = '$d' AND e = $b AND f = $g")
	assert.Equal(t, []string{"b", "g"}, got)
}

func TestFormatLiteral(t *testing.T) {
	lit, err := FormatLiteral(int64(-7))
	require.NoError(t, err)
	assert.Equal(t, "-7", lit)

	lit, err = FormatLiteral(false)
	require.NoError(t, err)
	assert.Equal(t, "FALSE", lit)

	_, err = FormatLiteral(map[string]any{})
	assert.Error(t, err)
}
