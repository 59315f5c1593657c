package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/gatehouselabs/gatehouse/internal/ratelimit"
	"github.com/gatehouselabs/gatehouse/internal/repositories"
	"github.com/gatehouselabs/gatehouse/internal/security"
	"github.com/gatehouselabs/gatehouse/internal/session"
)

// CleanupManager periodically sweeps expired state out of the in-memory
// stores and, when persistence is configured, the attempt trail. None of
// the stores need it for correctness; it bounds memory and table growth.
type CleanupManager struct {
	authority   *session.Authority
	limiter     ratelimit.Store
	csrf        *security.CSRFTokenManager
	attemptRepo *repositories.LoginAttemptRepository // optional
	logger      *slog.Logger
	interval    time.Duration
	stopCh      chan struct{}
}

// NewCleanupManager creates a new cleanup manager. attemptRepo may be nil
// when no database is configured.
func NewCleanupManager(
	authority *session.Authority,
	limiter ratelimit.Store,
	csrf *security.CSRFTokenManager,
	attemptRepo *repositories.LoginAttemptRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		authority:   authority,
		limiter:     limiter,
		csrf:        csrf,
		attemptRepo: attemptRepo,
		logger:      logger,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup sweeps each store once.
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	sessions := cm.authority.SweepExpired()
	limits := cm.limiter.SweepStale()
	tokens := cm.csrf.SweepExpired()

	if sessions > 0 || limits > 0 || tokens > 0 {
		cm.logger.Info("expired state cleanup completed",
			slog.Int("sessions_removed", sessions),
			slog.Int("rate_entries_removed", limits),
			slog.Int("csrf_tokens_removed", tokens),
		)
	}

	if cm.attemptRepo == nil {
		return
	}

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := cm.attemptRepo.DeleteExpiredAttempts(cleanupCtx); err != nil {
		cm.logger.Error("failed to cleanup expired login attempts", slog.Any("error", err))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
