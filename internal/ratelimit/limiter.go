// Package ratelimit implements the sliding-window attempt limiter that
// gatekeeps login attempts per email+IP identifier.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gatehouselabs/gatehouse/internal/clock"
)

// Config holds the lockout policy. These are deployment knobs, not
// hardcoded constants.
type Config struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultConfig returns the stock policy: 5 attempts per 15 minutes,
// 30 minute lockout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		BlockDuration: 30 * time.Minute,
	}
}

// Snapshot is the read-only view of one identifier's entry, exposed for
// operational dashboards.
type Snapshot struct {
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	Blocked       bool      `json:"blocked"`
}

// Store is the limiter state boundary. Production single-instance
// deployments use MemoryStore; multi-instance deployments can substitute a
// shared external store.
type Store interface {
	// Allow reports whether a new attempt for the identifier may proceed.
	// Stale and expired-block entries are deleted as a side effect so a
	// fresh window begins.
	Allow(identifier string) bool

	// RecordAttempt counts one completed attempt. The increment and the
	// blocked transition are atomic with respect to concurrent attempts
	// for the same identifier.
	RecordAttempt(identifier string)

	// Reset deletes the entry for an identifier so a fresh window begins.
	// Called after a successful verification.
	Reset(identifier string)

	// Snapshot returns the entry for an identifier, if any.
	Snapshot(identifier string) (Snapshot, bool)

	// RetryAfter returns how long until a blocked identifier unblocks;
	// zero when not blocked.
	RetryAfter(identifier string) time.Duration

	// SweepStale deletes entries whose window or block has lapsed and
	// returns how many were dropped.
	SweepStale() int
}

// Identifier builds the composite rate-limit key from a normalized email
// and the caller's resolved network address.
func Identifier(email, clientIP string) string {
	return email + "|" + clientIP
}

type entry struct {
	attempts      int
	lastAttemptAt time.Time
	blocked       bool
}

// MemoryStore is the in-memory Store. A single mutex guards the map; the
// dominant-latency verification call happens outside any lock the limiter
// owns, so contention here stays negligible.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
}

// NewMemoryStore creates a MemoryStore. A nil clk selects the system clock.
func NewMemoryStore(cfg Config, clk clock.Clock, logger *slog.Logger) *MemoryStore {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		entries: make(map[string]*entry),
		cfg:     cfg,
		clock:   clk,
		logger:  logger,
	}
}

// Config returns the active policy.
func (s *MemoryStore) Config() Config { return s.cfg }

// Allow implements the decision table:
//  1. no entry            -> allowed
//  2. blocked, in block   -> denied
//  3. blocked, lapsed     -> entry deleted, allowed
//  4. in window           -> allowed iff attempts < max
//  5. outside window      -> stale entry deleted, allowed
func (s *MemoryStore) Allow(identifier string) bool {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[identifier]
	if !exists {
		return true
	}

	elapsed := now.Sub(e.lastAttemptAt)

	if e.blocked {
		if elapsed < s.cfg.BlockDuration {
			return false
		}
		delete(s.entries, identifier)
		return true
	}

	if elapsed < s.cfg.Window {
		return e.attempts < s.cfg.MaxAttempts
	}

	delete(s.entries, identifier)
	return true
}

// RecordAttempt counts one completed attempt and flips the entry to blocked
// once the threshold is reached within the window.
func (s *MemoryStore) RecordAttempt(identifier string) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[identifier]
	if !exists || (!e.blocked && now.Sub(e.lastAttemptAt) >= s.cfg.Window) {
		e = &entry{}
		s.entries[identifier] = e
	}

	e.attempts++
	e.lastAttemptAt = now
	if e.attempts >= s.cfg.MaxAttempts && !e.blocked {
		e.blocked = true
		s.logger.Warn("identifier locked out",
			slog.Int("attempts", e.attempts),
			slog.Duration("block_duration", s.cfg.BlockDuration))
	}
}

// Reset deletes the entry for an identifier.
func (s *MemoryStore) Reset(identifier string) {
	s.mu.Lock()
	delete(s.entries, identifier)
	s.mu.Unlock()
}

// Snapshot returns the current entry for an identifier.
func (s *MemoryStore) Snapshot(identifier string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[identifier]
	if !exists {
		return Snapshot{}, false
	}
	return Snapshot{
		Attempts:      e.attempts,
		LastAttemptAt: e.lastAttemptAt,
		Blocked:       e.blocked,
	}, true
}

// RetryAfter returns the remaining lockout for a blocked identifier.
func (s *MemoryStore) RetryAfter(identifier string) time.Duration {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[identifier]
	if !exists || !e.blocked {
		return 0
	}
	remaining := s.cfg.BlockDuration - now.Sub(e.lastAttemptAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SweepStale evicts entries whose window or block duration has lapsed.
func (s *MemoryStore) SweepStale() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		horizon := s.cfg.Window
		if e.blocked {
			horizon = s.cfg.BlockDuration
		}
		if now.Sub(e.lastAttemptAt) >= horizon {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
