package models

import "time"

// LoginAttempt is one row of the persistent attempt trail consumed by
// operational dashboards. The in-memory rate limiter is authoritative for
// lockout decisions; this record is audit history only.
type LoginAttempt struct {
	ID                string    `db:"id"`
	Email             string    `db:"email"`
	IPAddress         string    `db:"ip_address"`
	UserAgent         string    `db:"user_agent"`
	AttemptTime       time.Time `db:"attempt_time"`
	Success           bool      `db:"success"`
	Stage             string    `db:"stage"`
	FailureReason     *string   `db:"failure_reason"`
	DeviceFingerprint string    `db:"device_fingerprint"`
	ExpiresAt         time.Time `db:"expires_at"`
}
