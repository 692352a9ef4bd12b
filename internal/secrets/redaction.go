package secrets

import (
	"regexp"
)

// Redactor provides secure redaction of sensitive data in logs and outputs
type Redactor struct {
	patterns    []*regexp.Regexp
	replacement string
}

// NewRedactor creates a new redactor with default sensitive patterns
func NewRedactor() *Redactor {
	// Default patterns for common sensitive data (case-insensitive)
	defaultPatterns := []string{
		// Database connection strings
		`postgres://[^:]+:[^@]+@[^/]+/[^\s?"']+`,
		`mysql://[^:]+:[^@]+@[^/]+/[^\s?"']+`,
		`mongodb://[^:]+:[^@]+@[^/]+/[^\s?"']+`,

		// API keys and tokens
		`(?i)\b[a-z0-9]{20,}\b`, // Generic long alphanumeric strings
		`(?i)(?:api[_-]?key|token|secret|password|pwd)["\s]*[:=]["\s]*[^\s"',}]+`,
		`(?i)bearer\s+[a-zA-Z0-9\-\._~\+/]+=*`,
		`(?i)basic\s+[a-zA-Z0-9\+/]+=*`,

		// JWT tokens
		`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,

		// Common cloud provider patterns
		`(?i)AKIA[0-9A-Z]{16}`,         // AWS Access Key ID
		`(?i)[0-9a-zA-Z/\+]{40}`,       // AWS Secret Access Key pattern
		`(?i)AIza[0-9A-Za-z\\-_]{35}`,  // Google API Key
		`(?i)sk-[a-zA-Z0-9]{48}`,       // OpenAI API Key

		// Private keys
		`-----BEGIN[A-Z\s]+PRIVATE KEY-----[\s\S]*?-----END[A-Z\s]+PRIVATE KEY-----`,

		// Credit card numbers (PCI compliance)
		`\b(?:\d{4}[-\s]?){3}\d{4}\b`,

		// Social security numbers
		`\b\d{3}-?\d{2}-?\d{4}\b`,

		// Phone numbers (basic patterns)
		`\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`,

		// Email addresses (when used as usernames in URLs)
		`(?i)[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`,
	}

	patterns := make([]*regexp.Regexp, len(defaultPatterns))
	for i, pattern := range defaultPatterns {
		patterns[i] = regexp.MustCompile(pattern)
	}

	return &Redactor{
		patterns:    patterns,
		replacement: "[REDACTED]",
	}
}

// RedactString redacts sensitive data from a string
func (r *Redactor) RedactString(input string) string {
	result := input
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}
