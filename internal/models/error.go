package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")

	// Login gate errors
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrSuspiciousInput   = errors.New("suspicious input detected")
	ErrRateLimited       = errors.New("too many failed attempts")
	ErrCSRFViolation     = errors.New("invalid request token")
	ErrVerifyTimeout     = errors.New("credential verification timed out")
	ErrVerifyUnavailable = errors.New("credential verification unavailable")

	// MFA errors
	ErrChallengeExpired = errors.New("mfa challenge expired or already used")
	ErrInvalidMFACode   = errors.New("invalid mfa code")
	ErrNotEnrolled      = errors.New("user not enrolled for mfa")

	// Session errors
	ErrSessionNotFound = errors.New("session not found or expired")
)
