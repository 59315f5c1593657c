// Package services composes the security gates into the login orchestrator
// and the MFA challenge exchange.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gatehouselabs/gatehouse/internal/auth"
	"github.com/gatehouselabs/gatehouse/internal/metrics"
	"github.com/gatehouselabs/gatehouse/internal/models"
	"github.com/gatehouselabs/gatehouse/internal/ratelimit"
	"github.com/gatehouselabs/gatehouse/internal/security"
	"github.com/gatehouselabs/gatehouse/internal/session"
	pkglogger "github.com/gatehouselabs/gatehouse/pkg/logger"
)

// Terminal stages of the login state machine. Every failure result and
// audit event is tagged with the gate that produced it.
const (
	StageInvalidEmail    = "invalid_email_format"
	StageInvalidPassword = "invalid_password_format"
	StageSuspicious      = "suspicious_input"
	StageRateLimited     = "rate_limited"
	StageCSRF            = "csrf_violation"
	StageAuthFailed      = "auth_failed"
	StageVerifyTimeout   = "verify_timeout"
	StageNoSession       = "no_session"
	StageUnexpected      = "unexpected_error"
	StageMFARequired     = "mfa_required"
	StageSuccess         = "success"
)

// DefaultVerifyTimeout bounds the external credential verification call.
const DefaultVerifyTimeout = 5 * time.Second

// AttemptRecorder persists attempt history for dashboards. Recording is
// fire-and-forget; failures never influence the login decision.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

// LoginOptions are the orchestrator's policy knobs.
type LoginOptions struct {
	// VerifyTimeout bounds the external verification call. Zero selects
	// the default.
	VerifyTimeout time.Duration

	// GenericAuthErrors replaces the backend's rejection message with a
	// fixed "Invalid credentials" to close the user-enumeration channel.
	GenericAuthErrors bool

	// AttemptRetention controls how long persisted attempt rows live.
	AttemptRetention time.Duration
}

// LoginService is the rate-limited secure login orchestrator. SecureLogin
// is its sole public entry point.
type LoginService struct {
	sanitizer   *security.Sanitizer
	csrf        *security.CSRFTokenManager
	limiter     ratelimit.Store
	authority   *session.Authority
	verifier    CredentialVerifier
	mfaPolicy   MFAPolicy
	timing      *auth.TimingDelay
	attempts    AttemptRecorder // optional
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	opts        LoginOptions
}

// NewLoginService wires the orchestrator. attempts may be nil when no
// persistent trail is configured.
func NewLoginService(
	sanitizer *security.Sanitizer,
	csrf *security.CSRFTokenManager,
	limiter ratelimit.Store,
	authority *session.Authority,
	verifier CredentialVerifier,
	mfaPolicy MFAPolicy,
	timing *auth.TimingDelay,
	attempts AttemptRecorder,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	opts LoginOptions,
) *LoginService {
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = DefaultVerifyTimeout
	}
	if opts.AttemptRetention <= 0 {
		opts.AttemptRetention = 24 * time.Hour
	}
	return &LoginService{
		sanitizer:   sanitizer,
		csrf:        csrf,
		limiter:     limiter,
		authority:   authority,
		verifier:    verifier,
		mfaPolicy:   mfaPolicy,
		timing:      timing,
		attempts:    attempts,
		logger:      logger,
		auditLogger: auditLogger,
		opts:        opts,
	}
}

// SecureLogin runs one attempt through the sequential gates:
// SANITIZE -> THREAT_SCAN -> RATE_CHECK -> CSRF_CHECK -> VERIFY ->
// (MFA_REQUIRED | ISSUE_SESSION). Failing any gate terminates with a
// failure result; no error ever propagates past this boundary.
func (s *LoginService) SecureLogin(ctx context.Context, creds models.Credentials) (result *models.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in login pipeline", slog.Any("panic", r))
			s.audit("login_failure", StageUnexpected, "", creds, false, fmt.Sprint(r), nil)
			metrics.LoginAttemptsTotal.WithLabelValues(StageUnexpected).Inc()
			result = &models.Result{
				Success: false,
				Error:   "An unexpected error occurred",
				Stage:   StageUnexpected,
			}
		}
	}()

	s.audit("login_attempt", "", "", creds, true, "", nil)

	// THREAT_SCAN runs on the RAW fields, independent of sanitization, so a
	// rejected email still carries its threat flags into the audit trail.
	var flags []string
	for _, report := range []security.ThreatReport{
		security.DetectSuspiciousInput(creds.Email),
		security.DetectSuspiciousInput(creds.Password),
	} {
		if report.Suspicious {
			flags = append(flags, report.Threats...)
		}
	}

	// SANITIZE: a rejected email terminates before the rate limiter so a
	// trivially malformed probe cannot drain a legitimate user's window.
	email, ok := s.sanitizer.SanitizeEmail(creds.Email)
	if !ok {
		return s.fail(StageInvalidEmail, "Invalid email format", creds, flags)
	}

	if len(flags) > 0 {
		return s.fail(StageSuspicious, "Invalid request", creds, flags)
	}

	password, ok := s.sanitizer.SanitizePassword(creds.Password)
	if !ok {
		return s.fail(StageInvalidPassword, "Invalid credentials", creds, nil)
	}

	// Advisory only; never a gate.
	strength := security.EvaluateStrength(password, s.sanitizer.MinPasswordLength())
	warnings := append(strength.Feedback, strength.Suggestions...)

	// RATE_CHECK
	identifier := ratelimit.Identifier(email, creds.ClientIP)
	if !s.limiter.Allow(identifier) {
		metrics.RateLimitedTotal.Inc()
		retryAfter := s.limiter.RetryAfter(identifier)
		res := s.fail(StageRateLimited,
			fmt.Sprintf("Too many failed attempts. Try again in %s.", formatRetry(retryAfter)),
			creds, nil)
		res.RetryAfterSeconds = int(retryAfter.Seconds())
		return res
	}

	// CSRF_CHECK: a missing token means the client context was never
	// provisioned and the check is skipped; a supplied token must match.
	if creds.CSRFToken != "" && !s.csrf.Validate(clientContext(creds), creds.CSRFToken) {
		return s.fail(StageCSRF, "Invalid request token", creds, nil)
	}

	// VERIFY: bounded, outside any lock the core owns, and detached from
	// caller cancellation so the rate-limit side effect always lands.
	start := time.Now()
	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.VerifyTimeout)
	outcome, err := s.verifier.Verify(vctx, email, password)
	cancel()
	metrics.VerifyDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Retryable; deliberately does not consume an attempt slot.
			s.timing.WaitFrom(start, false)
			return s.fail(StageVerifyTimeout,
				"Verification is taking too long. Please try again.", creds, nil)
		}
		s.logger.Error("credential verification failed", slog.Any("error", err))
		s.limiter.RecordAttempt(identifier)
		s.recordAttempt(email, creds, false, StageAuthFailed, "backend_unavailable")
		s.timing.WaitFrom(start, false)
		return s.fail(StageAuthFailed, "Authentication is temporarily unavailable", creds, nil)
	}

	if !outcome.Success {
		s.limiter.RecordAttempt(identifier)
		s.recordAttempt(email, creds, false, StageAuthFailed, "invalid_credentials")
		s.timing.WaitFrom(start, false)

		msg := outcome.ErrorMessage
		if msg == "" || s.opts.GenericAuthErrors {
			msg = "Invalid credentials"
		}
		res := s.fail(StageAuthFailed, msg, creds, nil)
		res.SecurityWarnings = warnings
		return res
	}

	if outcome.User == nil || outcome.User.ID == "" {
		// Backend said yes but returned no identity; never mint a session
		// for an unknown user.
		return s.fail(StageNoSession, "An unexpected error occurred", creds, nil)
	}

	s.timing.WaitFrom(start, true)
	s.limiter.Reset(identifier)
	s.recordAttempt(email, creds, true, StageSuccess, "")

	// MFA policy check
	required, err := s.mfaPolicy.RequiresMFA(ctx, outcome.User)
	if err != nil {
		s.logger.Error("mfa policy check failed",
			slog.String("user_id", outcome.User.ID), slog.Any("error", err))
		return s.fail(StageUnexpected, "An unexpected error occurred", creds, nil)
	}

	if required {
		challenge, err := s.authority.IssueMFAChallenge(outcome.User.ID)
		if err != nil {
			s.logger.Error("failed to issue mfa challenge",
				slog.String("user_id", outcome.User.ID), slog.Any("error", err))
			return s.fail(StageNoSession, "An unexpected error occurred", creds, nil)
		}

		s.audit("login_success", StageMFARequired, outcome.User.ID, creds, true, "", []string{"mfa_challenge_issued"})
		metrics.LoginAttemptsTotal.WithLabelValues(StageMFARequired).Inc()
		return &models.Result{
			Success:          true,
			RequiresMFA:      true,
			MFAToken:         challenge.Token,
			SecurityWarnings: warnings,
			Stage:            StageMFARequired,
		}
	}

	sess, err := s.authority.IssueSession(outcome.User.ID)
	if err != nil {
		s.logger.Error("failed to issue session",
			slog.String("user_id", outcome.User.ID), slog.Any("error", err))
		return s.fail(StageNoSession, "An unexpected error occurred", creds, nil)
	}
	metrics.SessionsActive.Inc()

	s.audit("login_success", StageSuccess, outcome.User.ID, creds, true, "", nil)
	metrics.LoginAttemptsTotal.WithLabelValues(StageSuccess).Inc()
	return &models.Result{
		Success:          true,
		Session:          sess,
		User:             outcome.User,
		SecurityWarnings: warnings,
		Stage:            StageSuccess,
	}
}

// RateLimitSnapshot exposes the limiter entry for an identifier to
// operational dashboards.
func (s *LoginService) RateLimitSnapshot(identifier string) (ratelimit.Snapshot, bool) {
	return s.limiter.Snapshot(identifier)
}

// fail builds the failure result and emits its audit event.
func (s *LoginService) fail(stage, message string, creds models.Credentials, flags []string) *models.Result {
	s.audit("login_failure", stage, "", creds, false, stage, flags)
	metrics.LoginAttemptsTotal.WithLabelValues(stage).Inc()
	return &models.Result{
		Success: false,
		Error:   message,
		Stage:   stage,
	}
}

func (s *LoginService) audit(eventType, stage, userID string, creds models.Credentials, success bool, reason string, flags []string) {
	s.auditLogger.LogLoginEvent(pkglogger.AuditEvent{
		EventType:     eventType,
		Stage:         stage,
		UserID:        userID,
		Email:         creds.Email,
		IPAddress:     creds.ClientIP,
		UserAgent:     creds.UserAgent,
		Success:       success,
		FailureReason: reason,
		SecurityFlags: flags,
	})
}

// recordAttempt persists attempt history asynchronously. A detached context
// keeps the write alive when the caller hangs up mid-flight.
func (s *LoginService) recordAttempt(email string, creds models.Credentials, success bool, stage, reason string) {
	if s.attempts == nil {
		return
	}

	attempt := &models.LoginAttempt{
		Email:             email,
		IPAddress:         creds.ClientIP,
		UserAgent:         creds.UserAgent,
		Success:           success,
		Stage:             stage,
		DeviceFingerprint: creds.DeviceFingerprint,
		ExpiresAt:         time.Now().Add(s.opts.AttemptRetention),
	}
	if reason != "" {
		attempt.FailureReason = &reason
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
			s.logger.Error("failed to persist login attempt", slog.Any("error", err))
		}
	}()
}

// clientContext picks the key the CSRF store is scoped by: the device
// fingerprint when the client supplies one, else the network address.
func clientContext(creds models.Credentials) string {
	if creds.DeviceFingerprint != "" {
		return creds.DeviceFingerprint
	}
	return creds.ClientIP
}

func formatRetry(d time.Duration) string {
	if d <= 0 {
		return "a moment"
	}
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "under a minute"
	}
	return strings.TrimSuffix(d.String(), "0s")
}
