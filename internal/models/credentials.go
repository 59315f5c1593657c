package models

// Credentials carries one login attempt through the security gates.
// Immutable per request; the transport layer fills ClientIP and UserAgent.
type Credentials struct {
	Email             string
	Password          string
	CSRFToken         string
	RememberMe        bool
	DeviceFingerprint string
	ClientIP          string
	UserAgent         string
}

// User is the identity record returned by the credential verification backend.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Result is the terminal outcome of a login attempt. Exactly one of
// {Success+Session}, {Success+RequiresMFA+MFAToken} or {!Success+Error}
// holds for any value produced by the orchestrator.
type Result struct {
	Success          bool      `json:"success"`
	Session          *Session  `json:"session,omitempty"`
	User             *User     `json:"user,omitempty"`
	Error            string    `json:"error,omitempty"`
	SecurityWarnings []string  `json:"security_warnings,omitempty"`
	RequiresMFA      bool      `json:"requires_mfa,omitempty"`
	MFAToken         string    `json:"mfa_token,omitempty"`

	// Stage is the failing gate for failed results (rate_limited,
	// csrf_violation, ...). Transport uses it to pick a status code;
	// it is never serialized to callers.
	Stage string `json:"-"`

	// RetryAfterSeconds is set on rate_limited failures so callers can
	// render a countdown without learning the attempt counter.
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}
