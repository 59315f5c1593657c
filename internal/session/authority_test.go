package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouselabs/gatehouse/internal/clock"
)

func newTestAuthority(t *testing.T) (*Authority, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewAuthority(nil, 0, mock, nil), mock
}

func TestIssueSession(t *testing.T) {
	authority, mock := newTestAuthority(t)

	sess, err := authority.IssueSession("user-1")
	require.NoError(t, err)

	assert.Len(t, sess.ID, 64) // 32 bytes, hex encoded
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, mock.Now(), sess.CreatedAt)
	assert.Equal(t, mock.Now().Add(DefaultSessionTimeout), sess.ExpiresAt)

	resolved, ok := authority.Session(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.ID, resolved.ID)
}

func TestSessionIDsAreUnique(t *testing.T) {
	authority, _ := newTestAuthority(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		sess, err := authority.IssueSession("user-1")
		require.NoError(t, err)
		assert.False(t, seen[sess.ID], "duplicate session ID")
		seen[sess.ID] = true
	}
}

func TestSession_ExpiryEvictsLazily(t *testing.T) {
	authority, mock := newTestAuthority(t)

	sess, err := authority.IssueSession("user-1")
	require.NoError(t, err)

	mock.Advance(8*time.Hour - time.Minute)
	_, ok := authority.Session(sess.ID)
	assert.True(t, ok)

	mock.Advance(2 * time.Minute)
	_, ok = authority.Session(sess.ID)
	assert.False(t, ok)

	// The expired record was evicted, not just hidden
	_, ok = authority.Session(sess.ID)
	assert.False(t, ok)
}

func TestSession_UnknownID(t *testing.T) {
	authority, _ := newTestAuthority(t)

	_, ok := authority.Session("no-such-session")
	assert.False(t, ok)
}

func TestRevoke(t *testing.T) {
	authority, _ := newTestAuthority(t)

	sess, err := authority.IssueSession("user-1")
	require.NoError(t, err)

	authority.Revoke(sess.ID)

	_, ok := authority.Session(sess.ID)
	assert.False(t, ok)
}

func TestMFAChallenge_SingleUse(t *testing.T) {
	authority, _ := newTestAuthority(t)

	challenge, err := authority.IssueMFAChallenge("user-1")
	require.NoError(t, err)
	assert.Len(t, challenge.Token, 64)

	consumed, ok := authority.ConsumeChallenge(challenge.Token)
	require.True(t, ok)
	assert.Equal(t, "user-1", consumed.UserID)

	// Second redemption fails
	_, ok = authority.ConsumeChallenge(challenge.Token)
	assert.False(t, ok)
}

func TestMFAChallenge_Expired(t *testing.T) {
	authority, mock := newTestAuthority(t)

	challenge, err := authority.IssueMFAChallenge("user-1")
	require.NoError(t, err)

	mock.Advance(DefaultSessionTimeout + time.Minute)

	_, ok := authority.ConsumeChallenge(challenge.Token)
	assert.False(t, ok)
}

func TestSweepExpired(t *testing.T) {
	authority, mock := newTestAuthority(t)

	_, err := authority.IssueSession("user-1")
	require.NoError(t, err)
	_, err = authority.IssueMFAChallenge("user-2")
	require.NoError(t, err)

	assert.Zero(t, authority.SweepExpired())

	mock.Advance(DefaultSessionTimeout + time.Minute)
	assert.Equal(t, 2, authority.SweepExpired())
}

func TestCustomTimeout(t *testing.T) {
	mock := clock.NewMock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	authority := NewAuthority(nil, 30*time.Minute, mock, nil)

	sess, err := authority.IssueSession("user-1")
	require.NoError(t, err)
	assert.Equal(t, mock.Now().Add(30*time.Minute), sess.ExpiresAt)

	mock.Advance(31 * time.Minute)
	_, ok := authority.Session(sess.ID)
	assert.False(t, ok)
}
