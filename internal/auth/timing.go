package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelayMs    int  // Base delay in milliseconds
	RandomDelayMs  int  // Random delay range in milliseconds
	DelayOnSuccess bool // If true, delay even on successful login
}

// TimingDelay flattens response timing so "unknown email", "bad password"
// and backend rejections are indistinguishable to a remote observer.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// cryptoRandIntn returns a secure random number in [0, max).
// Uses crypto/rand; the jitter must not be predictable.
func cryptoRandIntn(max int) int {
	if max <= 0 {
		return 0
	}
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(raw) % uint64(max))
}

func (td *TimingDelay) target() time.Duration {
	base := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	jitter := time.Duration(cryptoRandIntn(td.config.RandomDelayMs)) * time.Millisecond
	return base + jitter
}

// Wait applies the full delay for a failed operation (or any operation when
// DelayOnSuccess is set).
func (td *TimingDelay) Wait(success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	time.Sleep(td.target())
}

// WaitFrom sleeps only for the remainder of the target delay, measured from
// startTime. Used around the verification call, which already consumes time.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	if elapsed := time.Since(startTime); elapsed < td.target() {
		time.Sleep(td.target() - elapsed)
	}
}
