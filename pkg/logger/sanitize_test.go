package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected string
	}{
		{"standard address", "user@example.com", "u***@*******.com"},
		{"single char local part", "u@example.com", "u@*******.com"},
		{"subdomain masked", "user@mail.example.com", "u***@****.*******.com"},
		{"missing at sign", "not-an-email", "[invalid-email]"},
		{"multiple at signs", "a@b@c.com", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizedEmail(tt.email))
		})
	}
}

func TestTruncatedToken(t *testing.T) {
	assert.Equal(t, "abcdefgh...", TruncatedToken("abcdefghijklmnop"))
	assert.Equal(t, "short", TruncatedToken("short"))
	assert.Equal(t, "", TruncatedToken(""))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("password=hunter2"))
	assert.True(t, SanitizeQueryString("CSRF_token=abc"))
	assert.True(t, SanitizeQueryString("mfa=123456"))
	assert.False(t, SanitizeQueryString("page=2&limit=50"))
	assert.False(t, SanitizeQueryString(""))
}

func TestRedactedAttr(t *testing.T) {
	attr := RedactedAttr("email", "user@example.com", "production")
	assert.Equal(t, "[REDACTED]", attr.Value.String())

	attr = RedactedAttr("email", "user@example.com", "development")
	assert.Equal(t, "user@example.com", attr.Value.String())
}
