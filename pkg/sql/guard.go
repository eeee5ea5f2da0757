package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxQueryLength applies when a Guard has no explicit limit.
const DefaultMaxQueryLength = 50000

var (
	// ErrUnsafeSQL is returned when the denylist or comment checks match.
	ErrUnsafeSQL = errors.New("potentially unsafe SQL detected")

	// ErrQueryTooLong is returned when SQL exceeds the configured length.
	ErrQueryTooLong = errors.New("query too long")

	// ErrUnsafeParameter is returned when a parameter value looks like an injection.
	ErrUnsafeParameter = errors.New("potentially unsafe parameter value")
)

// The denylist runs on raw text. A semicolon inside a string literal
// followed by one of these keywords is still rejected.
var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i);\s*drop\s+`),
	regexp.MustCompile(`(?i);\s*delete\s+`),
	regexp.MustCompile(`(?is);\s*update\s+.*set`),
	regexp.MustCompile(`(?i);\s*insert\s+`),
	regexp.MustCompile(`(?i);\s*create\s+`),
	regexp.MustCompile(`(?i);\s*alter\s+`),
	regexp.MustCompile(`(?i);\s*truncate\s+`),
	regexp.MustCompile(`--`),
	regexp.MustCompile(`(?s)/\*.*?\*/`),
}

// Guard is the query service's first line of defense. It is a heuristic:
// data sources should still be configured with read-only credentials.
type Guard struct {
	MaxQueryLength int
}

// NewGuard returns a Guard with the given limit, or the default when limit <= 0.
func NewGuard(maxQueryLength int) *Guard {
	if maxQueryLength <= 0 {
		maxQueryLength = DefaultMaxQueryLength
	}
	return &Guard{MaxQueryLength: maxQueryLength}
}

// CheckSQL applies the denylist, comment and length checks.
func (g *Guard) CheckSQL(sqlQuery string) error {
	for _, p := range unsafePatterns {
		if p.MatchString(sqlQuery) {
			return ErrUnsafeSQL
		}
	}

	limit := g.MaxQueryLength
	if limit <= 0 {
		limit = DefaultMaxQueryLength
	}
	if len(sqlQuery) > limit {
		return fmt.Errorf("%w: maximum length is %d", ErrQueryTooLong, limit)
	}
	return nil
}

// Check runs CheckSQL and then screens string parameter values with libinjection.
func (g *Guard) Check(sqlQuery string, params map[string]any) error {
	if err := g.CheckSQL(sqlQuery); err != nil {
		return err
	}

	if flagged := CheckAllParameters(params); len(flagged) > 0 {
		names := make([]string, len(flagged))
		for i, f := range flagged {
			names[i] = f.String()
		}
		return fmt.Errorf("%w: %s", ErrUnsafeParameter, strings.Join(names, ", "))
	}
	return nil
}
