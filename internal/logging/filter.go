// Package logging provides logging utilities including sensitive data filtering.
// This package contains hooks and utilities for zerolog that keep Jira PATs,
// TestView session cookies, and database passwords out of log files.
package logging

import (
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// RedactedValue is the replacement string for sensitive data.
const RedactedValue = "[REDACTED]"

// sensitivePatterns contains compiled regular expressions for detecting sensitive values.
var sensitivePatterns = []*regexp.Regexp{ //nolint:gochecknoglobals // Package-level patterns for reuse
	// Bearer tokens (Jira personal access tokens are sent this way)
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_+/=.-]{20,}`),

	// Authorization headers with tokens
	regexp.MustCompile(`(?i)authorization\s*[:=]\s*["']?[a-zA-Z0-9_+/=.-]{20,}["']?`),

	// Cookie headers (TestView session)
	regexp.MustCompile(`(?i)cookie\s*[:=]\s*["']?[^\s"']{12,}["']?`),

	// Session ids embedded in cookie strings
	regexp.MustCompile(`(?i)(sessionid|jsessionid|csrftoken)=[^;\s"']{8,}`),

	// MySQL DSN credentials user:password@tcp(...)
	regexp.MustCompile(`[a-zA-Z0-9_.-]+:[^@\s/]{4,}@tcp\(`),

	// Generic secret patterns (secret, password, credential, pat with values)
	regexp.MustCompile(`(?i)(secret|password|credential|passwd|pwd|pat)\s*[:=]\s*["']?[^\s"']{8,}["']?`),

	// Base64-encoded secrets that look like tokens (long alphanumeric strings)
	regexp.MustCompile(`(?i)(token|auth)\s*[:=]\s*["']?[a-zA-Z0-9+/=]{32,}["']?`),
}

// sensitiveFieldNames contains field names that should always have their values redacted.
// Case-insensitive matching is performed.
var sensitiveFieldNames = []string{ //nolint:gochecknoglobals // Package-level patterns for reuse
	"password",
	"passwd",
	"secret",
	"credential",
	"pat",
	"jira_pat",
	"cookie",
	"testview_cookie",
	"auth_token",
	"access_token",
	"bearer",
	"authorization",
}

// SensitiveDataHook is a zerolog hook that flags log entries whose message
// looks like it carries a credential.
type SensitiveDataHook struct{}

// NewSensitiveDataHook creates a new SensitiveDataHook for filtering sensitive data.
func NewSensitiveDataHook() *SensitiveDataHook {
	return &SensitiveDataHook{}
}

// Run implements the zerolog.Hook interface.
// Zerolog hooks cannot rewrite the message, so call sites filter values with
// SafeValue and the file writer is wrapped in a FilteringWriter. The hook only
// marks the event.
func (h *SensitiveDataHook) Run(e *zerolog.Event, _ zerolog.Level, msg string) {
	if ContainsSensitiveData(msg) {
		e.Bool("contains_filtered_data", true)
	}
}

// ContainsSensitiveData checks if a string contains any sensitive data patterns.
func ContainsSensitiveData(s string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// FilterSensitiveValue replaces any matches of sensitive patterns with [REDACTED].
func FilterSensitiveValue(value string) string {
	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// IsSensitiveFieldName checks if a field name indicates sensitive data.
// Short names like "pat" must match exactly or as a "_"-delimited token so
// that "path" or "pattern" are not redacted.
func IsSensitiveFieldName(fieldName string) bool {
	lowerName := strings.ToLower(fieldName)
	for _, sensitive := range sensitiveFieldNames {
		if lowerName == sensitive {
			return true
		}
		if len(sensitive) <= 3 {
			for _, part := range strings.FieldsFunc(lowerName, isFieldSeparator) {
				if part == sensitive {
					return true
				}
			}
			continue
		}
		if strings.Contains(lowerName, sensitive) {
			return true
		}
	}
	return false
}

func isFieldSeparator(r rune) bool {
	return r == '_' || r == '-' || r == '.'
}

// RedactIfSensitive returns [REDACTED] if the field name indicates sensitive data,
// otherwise returns the filtered value.
func RedactIfSensitive(fieldName, value string) string {
	if IsSensitiveFieldName(fieldName) {
		return RedactedValue
	}
	return FilterSensitiveValue(value)
}

// SafeValue returns a filtered value for a field, redacting sensitive data.
//
// Usage:
//
//	log.Info().Str("dsn", logging.SafeValue("dsn", dsn)).Msg("opening hyvetest")
func SafeValue(fieldName, value string) string {
	return RedactIfSensitive(fieldName, value)
}

// FilteringWriter wraps an io.Writer and filters sensitive data from output.
// Log file writers are wrapped with it so credentials never reach disk.
type FilteringWriter struct {
	w io.Writer
}

// NewFilteringWriter creates a new FilteringWriter that wraps the given writer.
func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write implements io.Writer, filtering sensitive data before writing.
func (fw *FilteringWriter) Write(p []byte) (n int, err error) {
	filtered := FilterSensitiveValue(string(p))
	_, err = fw.w.Write([]byte(filtered))
	if err != nil {
		return 0, err
	}
	// Report the original length so callers don't see a short write.
	return len(p), nil
}
