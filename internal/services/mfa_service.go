package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gatehouselabs/gatehouse/internal/auth"
	"github.com/gatehouselabs/gatehouse/internal/metrics"
	"github.com/gatehouselabs/gatehouse/internal/models"
	"github.com/gatehouselabs/gatehouse/internal/session"
	pkglogger "github.com/gatehouselabs/gatehouse/pkg/logger"
)

// SecretSource resolves and updates TOTP enrollment state per user. The
// in-memory implementation serves single-instance deployments; durable
// stores can be substituted.
type SecretSource interface {
	Secret(ctx context.Context, userID string) (secret string, lastUsedAt *time.Time, err error)
	StoreSecret(ctx context.Context, userID, secret string) error
	MarkUsed(ctx context.Context, userID string, at time.Time) error
}

// MemorySecretSource keeps TOTP enrollment state in a map.
type MemorySecretSource struct {
	mu      sync.Mutex
	secrets map[string]*totpRecord
}

type totpRecord struct {
	secret     string
	lastUsedAt *time.Time
}

// NewMemorySecretSource creates an empty MemorySecretSource.
func NewMemorySecretSource() *MemorySecretSource {
	return &MemorySecretSource{secrets: make(map[string]*totpRecord)}
}

func (m *MemorySecretSource) Secret(ctx context.Context, userID string) (string, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.secrets[userID]
	if !ok {
		return "", nil, models.ErrNotEnrolled
	}
	return rec.secret, rec.lastUsedAt, nil
}

func (m *MemorySecretSource) StoreSecret(ctx context.Context, userID, secret string) error {
	m.mu.Lock()
	m.secrets[userID] = &totpRecord{secret: secret}
	m.mu.Unlock()
	return nil
}

func (m *MemorySecretSource) MarkUsed(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.secrets[userID]
	if !ok {
		return models.ErrNotEnrolled
	}
	rec.lastUsedAt = &at
	return nil
}

// MFAService completes the second half of an MFA-gated login: it redeems a
// challenge token plus a TOTP code for a full session. It also handles
// enrollment.
type MFAService struct {
	totp        *auth.TOTPManager
	secrets     SecretSource
	authority   *session.Authority
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewMFAService wires the MFA challenge exchange.
func NewMFAService(
	totp *auth.TOTPManager,
	secrets SecretSource,
	authority *session.Authority,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *MFAService {
	return &MFAService{
		totp:        totp,
		secrets:     secrets,
		authority:   authority,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Enroll generates a fresh TOTP secret for a user and returns the
// provisioning material. Re-enrolling replaces any existing secret.
func (s *MFAService) Enroll(ctx context.Context, userID, accountName string) (*auth.Enrollment, error) {
	enrollment, err := s.totp.GenerateEnrollment(accountName)
	if err != nil {
		return nil, err
	}

	if err := s.secrets.StoreSecret(ctx, userID, enrollment.Secret); err != nil {
		return nil, err
	}

	s.auditLogger.LogSessionAction("mfa_enrolled", userID, "", nil)
	return enrollment, nil
}

// VerifyChallenge redeems a single-use challenge token and a TOTP code for
// a session. The challenge is consumed even when the code turns out wrong,
// so a failed exchange requires a fresh login.
func (s *MFAService) VerifyChallenge(ctx context.Context, mfaToken, code, clientIP string) (*models.Result, error) {
	challenge, ok := s.authority.ConsumeChallenge(mfaToken)
	if !ok {
		return nil, models.ErrChallengeExpired
	}

	secret, lastUsedAt, err := s.secrets.Secret(ctx, challenge.UserID)
	if err != nil {
		s.auditLogger.LogSessionAction("mfa_verify_failed", challenge.UserID, clientIP,
			map[string]string{"reason": "not_enrolled"})
		return nil, err
	}

	valid, err := s.totp.ValidateCode(secret, code, lastUsedAt)
	if err != nil || !valid {
		if err != nil {
			s.logger.Warn("totp validation rejected",
				slog.String("user_id", challenge.UserID), slog.Any("error", err))
		}
		s.auditLogger.LogSessionAction("mfa_verify_failed", challenge.UserID, clientIP,
			map[string]string{"reason": "invalid_code"})
		return nil, models.ErrInvalidMFACode
	}

	if err := s.secrets.MarkUsed(ctx, challenge.UserID, time.Now()); err != nil {
		s.logger.Error("failed to record totp use",
			slog.String("user_id", challenge.UserID), slog.Any("error", err))
	}

	sess, err := s.authority.IssueSession(challenge.UserID)
	if err != nil {
		s.logger.Error("failed to issue session after mfa",
			slog.String("user_id", challenge.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	metrics.SessionsActive.Inc()

	s.auditLogger.LogSessionAction("mfa_verified", challenge.UserID, clientIP, nil)
	return &models.Result{
		Success: true,
		Session: sess,
		User:    &models.User{ID: challenge.UserID},
		Stage:   StageSuccess,
	}, nil
}
