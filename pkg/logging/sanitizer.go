package logging

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const (
	// MaxQueryLogLength bounds the SQL text written to logs.
	MaxQueryLogLength = 200
	// RedactedText replaces secrets.
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// access tokens passed as key/value pairs (Databricks, BigQuery, Snowflake DSNs)
	tokenPattern = regexp.MustCompile(`(?i)(access_?token|token|authenticator_token|private_?key)=[^;&\s]+`)

	// Databricks personal access tokens
	dapiPattern = regexp.MustCompile(`dapi[0-9a-f]{16,}(-\d+)?`)

	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-_.=]+`)

	// user:pass@host
	credentialsPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s?]+`)
)

func redact(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = tokenPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = dapiPattern.ReplaceAllString(s, RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = credentialsPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
	return s
}

// SanitizeConnectionString removes credentials from a DSN or URL before it is logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	return redact(connStr)
}

// SanitizeError returns err's message with credentials removed.
// Driver errors frequently echo the DSN they were given.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error())
}

// SanitizeQuery collapses whitespace, truncates and redacts SQL for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	sanitized := strings.Join(strings.Fields(query), " ")
	sanitized = TruncateString(sanitized, MaxQueryLogLength)
	return redact(sanitized)
}

// TruncateString truncates s to maxLen bytes and appends an ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ErrorField is zap.Error with the message sanitized.
func ErrorField(err error) zap.Field {
	return zap.String("error", SanitizeError(err))
}

// QueryField logs SQL under the "sql" key after SanitizeQuery.
func QueryField(query string) zap.Field {
	return zap.String("sql", SanitizeQuery(query))
}
