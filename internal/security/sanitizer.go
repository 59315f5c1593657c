// Package security implements the pre-verification gates of the login
// pipeline: input sanitization, threat detection, CSRF validation and the
// advisory password strength scorer.
package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const DefaultMinPasswordLength = 8

var (
	scriptTagRe     = regexp.MustCompile(`(?i)<script[^>]*>[\s\S]*?</script>`)
	scriptOpenRe    = regexp.MustCompile(`(?i)<script[^>]*/?>`)
	javascriptURIRe = regexp.MustCompile(`(?i)javascript\s*:`)
	eventHandlerRe  = regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`)

	// Conservative email shape; stricter validation is the backend's call.
	emailShapeRe = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)
)

// Sanitizer normalizes and validates raw login input before any of it
// reaches the rate limiter or the verification backend.
type Sanitizer struct {
	policy         *bluemonday.Policy
	minPasswordLen int
}

// NewSanitizer creates a Sanitizer. minPasswordLen <= 0 selects the default.
func NewSanitizer(minPasswordLen int) *Sanitizer {
	if minPasswordLen <= 0 {
		minPasswordLen = DefaultMinPasswordLength
	}
	return &Sanitizer{
		// StrictPolicy strips every HTML element and attribute; the regex
		// pre-pass removes script bodies so their content doesn't survive
		// tag stripping.
		policy:         bluemonday.StrictPolicy(),
		minPasswordLen: minPasswordLen,
	}
}

// SanitizeEmail strips dangerous markup from a raw email and validates the
// remainder against a standard email shape. ok is false when the stripped
// value no longer looks like an email.
func (s *Sanitizer) SanitizeEmail(raw string) (email string, ok bool) {
	cleaned := stripDangerous(raw)
	cleaned = s.policy.Sanitize(cleaned)
	cleaned = strings.ToLower(strings.TrimSpace(cleaned))

	if cleaned == "" || len(cleaned) > 254 || !emailShapeRe.MatchString(cleaned) {
		return "", false
	}
	return cleaned, true
}

// SanitizePassword strips the same dangerous patterns and enforces only the
// minimum length. Strength is advisory and scored separately.
func (s *Sanitizer) SanitizePassword(raw string) (password string, ok bool) {
	cleaned := stripDangerous(raw)
	if len(cleaned) < s.minPasswordLen {
		return "", false
	}
	return cleaned, true
}

// MinPasswordLength returns the configured minimum.
func (s *Sanitizer) MinPasswordLength() int { return s.minPasswordLen }

func stripDangerous(in string) string {
	out := scriptTagRe.ReplaceAllString(in, "")
	out = scriptOpenRe.ReplaceAllString(out, "")
	out = javascriptURIRe.ReplaceAllString(out, "")
	out = eventHandlerRe.ReplaceAllString(out, "")
	return out
}
