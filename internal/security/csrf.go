package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gatehouselabs/gatehouse/internal/clock"
)

// DefaultCSRFTokenTTL bounds how long an issued anti-forgery token stays valid.
const DefaultCSRFTokenTTL = 15 * time.Minute

type csrfEntry struct {
	token  string
	expiry time.Time
}

// CSRFTokenManager issues anti-forgery tokens keyed by client context (a
// device fingerprint or browser identifier, not the login attempt) and
// validates caller-supplied tokens against them.
type CSRFTokenManager struct {
	mu      sync.RWMutex
	entries map[string]*csrfEntry // client context -> issued token
	ttl     time.Duration
	clock   clock.Clock
}

// NewCSRFTokenManager creates a CSRF token manager. A zero ttl selects the
// default; a nil clk selects the system clock.
func NewCSRFTokenManager(ttl time.Duration, clk clock.Clock) *CSRFTokenManager {
	if ttl <= 0 {
		ttl = DefaultCSRFTokenTTL
	}
	if clk == nil {
		clk = clock.System()
	}
	return &CSRFTokenManager{
		entries: make(map[string]*csrfEntry),
		ttl:     ttl,
		clock:   clk,
	}
}

// Issue creates and stores a fresh token for a client context, replacing any
// previously issued one.
func (m *CSRFTokenManager) Issue(clientContext string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)

	m.mu.Lock()
	m.entries[clientContext] = &csrfEntry{
		token:  token,
		expiry: m.clock.Now().Add(m.ttl),
	}
	m.mu.Unlock()

	return token, nil
}

// Validate reports whether provided matches the unexpired token stored for
// the client context. A context with no stored token never validates.
func (m *CSRFTokenManager) Validate(clientContext, provided string) bool {
	if provided == "" {
		return false
	}

	m.mu.RLock()
	entry, exists := m.entries[clientContext]
	m.mu.RUnlock()

	if !exists {
		return false
	}
	if m.clock.Now().After(entry.expiry) {
		m.mu.Lock()
		delete(m.entries, clientContext)
		m.mu.Unlock()
		return false
	}
	return TokensEqual(provided, entry.token)
}

// Revoke drops the token stored for a client context.
func (m *CSRFTokenManager) Revoke(clientContext string) {
	m.mu.Lock()
	delete(m.entries, clientContext)
	m.mu.Unlock()
}

// SweepExpired removes expired entries and returns how many were dropped.
// The background cleanup manager calls this periodically.
func (m *CSRFTokenManager) SweepExpired() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for ctx, entry := range m.entries {
		if now.After(entry.expiry) {
			delete(m.entries, ctx)
			removed++
		}
	}
	return removed
}

// TokensEqual compares two tokens in constant time. Both must be non-empty.
func TokensEqual(provided, stored string) bool {
	if provided == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(stored)) == 1
}
