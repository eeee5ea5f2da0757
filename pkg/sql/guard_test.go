package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard_CheckSQL(t *testing.T) {
	g := NewGuard(0)

	tests := []struct {
		name    string
		sql     string
		wantErr error
	}{
		{"plain select", "SELECT region, SUM(amount) FROM sales GROUP BY region", nil},
		{"stacked drop", "SELECT 1; DROP TABLE users", ErrUnsafeSQL},
		{"stacked delete lowercase", "select 1;delete from users", ErrUnsafeSQL},
		{"stacked update", "SELECT 1; UPDATE users SET admin = true", ErrUnsafeSQL},
		{"stacked update across lines", "SELECT 1;\nUPDATE users\nSET admin = true", ErrUnsafeSQL},
		{"stacked insert", "SELECT 1; INSERT INTO t VALUES (1)", ErrUnsafeSQL},
		{"stacked create", "SELECT 1; CREATE TABLE x (a int)", ErrUnsafeSQL},
		{"stacked alter", "SELECT 1; ALTER TABLE x ADD b int", ErrUnsafeSQL},
		{"stacked truncate", "SELECT 1; TRUNCATE TABLE x", ErrUnsafeSQL},
		{"line comment", "SELECT * FROM users -- hi", ErrUnsafeSQL},
		{"block comment", "SELECT /* hint */ * FROM users", ErrUnsafeSQL},
		{"block comment multiline", "SELECT /*\n hint \n*/ * FROM users", ErrUnsafeSQL},
		// Raw-text matching: the literal is not special-cased.
		{"keyword after semicolon in literal", "SELECT * FROM t WHERE note = 'a; drop this'", ErrUnsafeSQL},
		{"update without set after semicolon", "SELECT 1; update", nil},
		{"keyword without semicolon", "SELECT dropped, created FROM t", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CheckSQL(tt.sql)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGuard_Length(t *testing.T) {
	g := NewGuard(20)

	assert.NoError(t, g.CheckSQL("SELECT 1"))
	assert.NoError(t, g.CheckSQL("SELECT "+strings.Repeat("1", 13)))

	err := g.CheckSQL("SELECT " + strings.Repeat("1", 14))
	assert.ErrorIs(t, err, ErrQueryTooLong)
	assert.Contains(t, err.Error(), "20")

	assert.Equal(t, DefaultMaxQueryLength, NewGuard(-1).MaxQueryLength)
	assert.NoError(t, (&Guard{}).CheckSQL("SELECT 1"))
}

func TestGuard_CheckParameters(t *testing.T) {
	g := NewGuard(0)

	assert.NoError(t, g.Check("SELECT * FROM t WHERE r = $region", map[string]any{"region": "west", "n": 3}))

	err := g.Check("SELECT * FROM t WHERE r = $region", map[string]any{"region": "' OR '1'='1"})
	assert.ErrorIs(t, err, ErrUnsafeParameter)
	assert.Contains(t, err.Error(), "region")

	err = g.Check("SELECT 1 -- x", map[string]any{"region": "west"})
	assert.ErrorIs(t, err, ErrUnsafeSQL)
}
