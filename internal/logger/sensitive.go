package logger

import (
	"regexp"
)

// SensitiveDataPatterns contains regex patterns for sensitive data that should be redacted in logs
var SensitiveDataPatterns = []*regexp.Regexp{
	// Credentials embedded in a DSN or URL (user:password@host)
	regexp.MustCompile(`([A-Za-z0-9_.\-]+:)([^@\s/]+)(@)`),

	// API keys, tokens and secrets in key=value form
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|passw(or)?d|dsn)[0-9a-z\-_\.]*[\s:=]+)([^;,\s]{5,})`),
}

// RedactSensitiveData replaces credentials in database DSNs, Sentry DSNs and
// key=value pairs with "[REDACTED]".
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	input = SensitiveDataPatterns[0].ReplaceAllString(input, "${1}[REDACTED]${3}")
	return SensitiveDataPatterns[1].ReplaceAllString(input, "${1}[REDACTED]")
}
