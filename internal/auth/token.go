package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gatehouselabs/gatehouse/internal/models"
)

// SessionClaims is the JWT payload handed to browser clients. It carries
// the opaque session ID; the in-memory session record stays authoritative,
// so revocation takes effect even while the JWT is still signature-valid.
type SessionClaims struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates the transport-edge session tokens.
type TokenManager struct {
	secret []byte
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// MintSessionToken wraps a session record in a signed HS256 JWT whose
// expiry mirrors the session's.
func (tm *TokenManager) MintSessionToken(s *models.Session) (string, error) {
	claims := &SessionClaims{
		Type:      "session",
		SessionID: s.ID,
		UserID:    s.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a session token and returns its claims.
func (tm *TokenManager) ValidateToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, models.ErrUnauthorized
	}
	if claims.Type != "session" || claims.SessionID == "" {
		return nil, fmt.Errorf("invalid token: wrong type")
	}

	return claims, nil
}
