// Package masking redacts and truncates outward-facing strings so
// that serialized models never leak raw secrets, full emails, or
// unmasked tokens.
package masking

import (
	"regexp"
	"strings"
)

// MaxReasonLen bounds masked failure reasons recorded on deliveries.
const MaxReasonLen = 120

var (
	emailRe = regexp.MustCompile(`([A-Za-z0-9._%+-])[A-Za-z0-9._%+-]*@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
	// Long opaque tokens (API keys, bearer tokens, Stripe ids).
	tokenRe  = regexp.MustCompile(`\b(sk_|pk_|whsec_|rk_|Bearer\s+)?[A-Za-z0-9_-]{24,}\b`)
	secretRe = regexp.MustCompile(`(?i)(secret|password|token|authorization)\s*[=:]\s*\S+`)
)

// Truncate shortens s to max bytes with an ellipsis.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// Email masks the local part of any email address in s.
func Email(s string) string {
	return emailRe.ReplaceAllString(s, "$1***@$2")
}

// String masks emails, secrets, and token-shaped substrings in s.
func String(s string) string {
	s = secretRe.ReplaceAllString(s, "$1=[redacted]")
	s = Email(s)
	s = tokenRe.ReplaceAllString(s, "[redacted]")
	return s
}

// Reason produces a masked, bounded failure reason from an error.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	return Truncate(String(strings.TrimSpace(err.Error())), MaxReasonLen)
}

// ReasonString produces a masked, bounded reason from a raw string.
func ReasonString(s string) string {
	return Truncate(String(strings.TrimSpace(s)), MaxReasonLen)
}
