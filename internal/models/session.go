package models

import "time"

// Session is a minted session record. The ID is an opaque token with at
// least 16 bytes of entropy; lifetime ends at ExpiresAt or explicit
// revocation.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// MFAChallenge grants the right to submit a second factor before ExpiresAt.
// It is structurally a session record but grants no access by itself; the
// token is single-use and exchanged, never presented as a session.
type MFAChallenge struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is past its expiry at the given time.
func (c *MFAChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
