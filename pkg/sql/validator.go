// Package sql holds the SQL safety checks shared by the query service and connectors.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains more than one statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrEmptyQuery is returned for blank SQL.
	ErrEmptyQuery = errors.New("SQL query is empty")
)

// ValidateAndNormalize trims the query, strips a single trailing semicolon and
// rejects any remaining semicolon outside a quoted literal or identifier.
// Connectors call it before sending text to a backend.
func ValidateAndNormalize(sqlQuery string) (string, error) {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return "", ErrEmptyQuery
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	if hasSemicolonOutsideStrings(normalized) {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

// hasSemicolonOutsideStrings scans with a small state machine so that
// 'a;b' and "a;b" do not count as statement separators. Both backslash
// escapes and doubled quotes keep the scanner inside the literal.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBacktick
	)

	state := stateNormal
	prev := rune(0)

	for _, ch := range sqlQuery {
		switch state {
		case stateNormal:
			switch ch {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			case '`':
				state = stateBacktick
			}
		case stateSingleQuote:
			if ch == '\'' && prev != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if ch == '"' && prev != '\\' {
				state = stateNormal
			}
		case stateBacktick:
			if ch == '`' {
				state = stateNormal
			}
		}
		prev = ch
	}

	return false
}

func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimRight(strings.TrimSuffix(sqlQuery, ";"), " \t\n\r")
	}
	return sqlQuery
}
