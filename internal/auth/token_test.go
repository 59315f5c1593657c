package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouselabs/gatehouse/internal/models"
)

func testSession() *models.Session {
	now := time.Now()
	return &models.Session{
		ID:        "0123456789abcdef0123456789abcdef",
		UserID:    "user-1",
		CreatedAt: now,
		ExpiresAt: now.Add(8 * time.Hour),
	}
}

func TestMintAndValidateSessionToken(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!!")

	token, err := tm.MintSessionToken(testSession())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, "session", claims.Type)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", claims.SessionID)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!!")
	other := NewTokenManager("another-secret-32-characters-ok!")

	token, err := tm.MintSessionToken(testSession())
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!!")

	sess := testSession()
	sess.ExpiresAt = time.Now().Add(-time.Minute)

	token, err := tm.MintSessionToken(sess)
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!!")

	_, err := tm.ValidateToken("not.a.jwt")
	assert.Error(t, err)

	_, err = tm.ValidateToken("")
	assert.Error(t, err)
}
