// Package session owns the in-memory session and MFA challenge records.
// Durable persistence is an external collaborator's concern; this authority
// is the single writer for both maps.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gatehouselabs/gatehouse/internal/clock"
	"github.com/gatehouselabs/gatehouse/internal/models"
	pkglogger "github.com/gatehouselabs/gatehouse/pkg/logger"
)

// DefaultSessionTimeout is the stock session lifetime.
const DefaultSessionTimeout = 8 * time.Hour

const tokenBytes = 32 // 256 bits of entropy, hex-encoded

// Store is the persistence boundary for session and challenge records.
// MemoryStore serves single-instance deployments; a shared external store
// can be substituted for horizontal scaling.
type Store interface {
	PutSession(s *models.Session)
	GetSession(id string) (*models.Session, bool)
	DeleteSession(id string)

	PutChallenge(c *models.MFAChallenge)
	// TakeChallenge removes and returns the challenge; a token can be
	// taken at most once.
	TakeChallenge(token string) (*models.MFAChallenge, bool)

	SweepExpired(now time.Time) int
}

// MemoryStore keeps sessions and challenges in two maps behind one mutex.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]*models.Session
	challenges map[string]*models.MFAChallenge
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*models.Session),
		challenges: make(map[string]*models.MFAChallenge),
	}
}

func (m *MemoryStore) PutSession(s *models.Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

func (m *MemoryStore) GetSession(id string) (*models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemoryStore) DeleteSession(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *MemoryStore) PutChallenge(c *models.MFAChallenge) {
	m.mu.Lock()
	m.challenges[c.Token] = c
	m.mu.Unlock()
}

func (m *MemoryStore) TakeChallenge(token string) (*models.MFAChallenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[token]
	if ok {
		delete(m.challenges, token)
	}
	return c, ok
}

func (m *MemoryStore) SweepExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	for token, c := range m.challenges {
		if c.Expired(now) {
			delete(m.challenges, token)
			removed++
		}
	}
	return removed
}

// Authority mints and resolves session records and single-use MFA
// challenge tokens.
type Authority struct {
	store   Store
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger
}

// NewAuthority creates an Authority. A zero timeout selects the default;
// nil store and clock select the in-memory store and system clock.
func NewAuthority(store Store, timeout time.Duration, clk clock.Clock, logger *slog.Logger) *Authority {
	if store == nil {
		store = NewMemoryStore()
	}
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authority{store: store, timeout: timeout, clock: clk, logger: logger}
}

// Timeout returns the configured session lifetime.
func (a *Authority) Timeout() time.Duration { return a.timeout }

// IssueSession mints a session record for a verified user.
func (a *Authority) IssueSession(userID string) (*models.Session, error) {
	id, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := a.clock.Now()
	s := &models.Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.timeout),
	}
	a.store.PutSession(s)

	a.logger.Info("session issued", slog.String("user_id", userID))
	return s, nil
}

// IssueMFAChallenge mints a single-use challenge token. It grants no access
// by itself, only the right to submit a second factor before expiry.
func (a *Authority) IssueMFAChallenge(userID string) (*models.MFAChallenge, error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge token: %w", err)
	}

	now := a.clock.Now()
	c := &models.MFAChallenge{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.timeout),
	}
	a.store.PutChallenge(c)

	a.logger.Info("mfa challenge issued", slog.String("user_id", userID))
	return c, nil
}

// Session resolves a live session by ID. Expired records are evicted lazily.
func (a *Authority) Session(id string) (*models.Session, bool) {
	s, ok := a.store.GetSession(id)
	if !ok {
		return nil, false
	}
	if s.Expired(a.clock.Now()) {
		a.store.DeleteSession(id)
		return nil, false
	}
	return s, true
}

// ConsumeChallenge redeems a challenge token exactly once. Expired or
// already-consumed tokens fail.
func (a *Authority) ConsumeChallenge(token string) (*models.MFAChallenge, bool) {
	c, ok := a.store.TakeChallenge(token)
	if !ok {
		return nil, false
	}
	if c.Expired(a.clock.Now()) {
		return nil, false
	}
	return c, true
}

// Revoke ends a session before its expiry.
func (a *Authority) Revoke(id string) {
	a.store.DeleteSession(id)
	a.logger.Info("session revoked", slog.String("session_id", pkglogger.TruncatedToken(id)))
}

// SweepExpired evicts expired sessions and challenges to bound memory.
// Correctness does not depend on it; resolution checks expiry lazily.
func (a *Authority) SweepExpired() int {
	return a.store.SweepExpired(a.clock.Now())
}

func newToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
