// Package redact strips sensitive fragments from strings before they are
// logged or embedded in error responses: connection strings, signed tokens,
// cloud credentials, file paths and addresses that errors from the database,
// the object store or the auth layer may carry.
package redact

import "regexp"

// Redaction placeholders.
const (
	RedactedCredential = "[REDACTED_CREDENTIAL]"
	RedactedKey        = "[REDACTED_KEY]"
	RedactedPath       = "[REDACTED_PATH]"
	RedactedJWT        = "[REDACTED_JWT]"
	RedactedEmail      = "[REDACTED_EMAIL]"
	RedactedHost       = "[REDACTED_HOST]"
	RedactedSQL        = "[REDACTED_SQL]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Order matters: credentials and tokens first, broad patterns (paths, hosts)
// last so they cannot swallow a more specific match.
var rules = []rule{
	{regexp.MustCompile(`(?i)(postgres|postgresql|mysql)://[^@\s]+@`), RedactedCredential},
	{regexp.MustCompile(`(?i)(password|passwd|secret)([=:\s]['"]?)[^'"&\s]{3,}`), RedactedCredential},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), RedactedJWT},
	{regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?key|token)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`), RedactedKey},
	{regexp.MustCompile(`AKIA[A-Z0-9]{12,}`), RedactedKey},
	{regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE)[\s\w,*()=$]+(?:FROM|INTO|SET)[\s\w,*()='"$]*`), RedactedSQL},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), RedactedEmail},
	{regexp.MustCompile(`(/[\w.-]+){2,}`), RedactedPath},
	{regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}:\d{1,5}\b`), RedactedHost},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
// Returns the empty string for a nil error.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
