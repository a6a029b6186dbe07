package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redacted replaces values of sensitive attributes.
const Redacted = "***"

// Redactor masks secrets in log attributes.
type Redactor struct {
	sensitiveKeys []string
	patterns      []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a redactor with the default key names and patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		sensitiveKeys: []string{
			"bypass_token", "token", "secret", "password",
			"authorization", "api_key", "apikey",
			"plaintext", "data_key", "private_key",
		},
		patterns: []redactPattern{
			{regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-._~+/]+=*`), "Bearer " + Redacted},
			{regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*\S+`), "$1=" + Redacted},
		},
	}
}

// IsSensitiveKey reports whether an attribute name indicates secret data.
func (r *Redactor) IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range r.sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// RedactString masks secret-looking substrings of value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr function.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if r.IsSensitiveKey(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(r.RedactString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			a.Value = slog.StringValue(r.RedactString(err.Error()))
		}
	}
	return a
}
