package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouselabs/gatehouse/internal/auth"
	"github.com/gatehouselabs/gatehouse/internal/models"
	"github.com/gatehouselabs/gatehouse/internal/ratelimit"
	"github.com/gatehouselabs/gatehouse/internal/security"
	"github.com/gatehouselabs/gatehouse/internal/session"
	pkglogger "github.com/gatehouselabs/gatehouse/pkg/logger"
)

type stubVerifier struct {
	mu     sync.Mutex
	calls  int
	verify func(ctx context.Context, email, password string) (*VerifyOutcome, error)
}

func (s *stubVerifier) Verify(ctx context.Context, email, password string) (*VerifyOutcome, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.verify(ctx, email, password)
}

func (s *stubVerifier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubPolicy struct {
	required bool
	err      error
}

func (p *stubPolicy) RequiresMFA(ctx context.Context, user *models.User) (bool, error) {
	return p.required, p.err
}

type stubRecorder struct {
	attempts chan *models.LoginAttempt
}

func newStubRecorder() *stubRecorder {
	return &stubRecorder{attempts: make(chan *models.LoginAttempt, 16)}
}

func (r *stubRecorder) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	r.attempts <- attempt
	return nil
}

func acceptAll() *stubVerifier {
	return &stubVerifier{verify: func(ctx context.Context, email, password string) (*VerifyOutcome, error) {
		return &VerifyOutcome{
			Success: true,
			User:    &models.User{ID: "user-1", Email: email},
		}, nil
	}}
}

func rejectAll() *stubVerifier {
	return &stubVerifier{verify: func(ctx context.Context, email, password string) (*VerifyOutcome, error) {
		return &VerifyOutcome{Success: false, ErrorMessage: "Invalid credentials"}, nil
	}}
}

type serviceFixture struct {
	service   *LoginService
	csrf      *security.CSRFTokenManager
	limiter   *ratelimit.MemoryStore
	authority *session.Authority
}

func newFixture(t *testing.T, verifier CredentialVerifier, policy MFAPolicy, recorder AttemptRecorder, opts LoginOptions) *serviceFixture {
	t.Helper()

	discard := slog.New(slog.NewJSONHandler(io.Discard, nil))
	csrf := security.NewCSRFTokenManager(0, nil)
	limiter := ratelimit.NewMemoryStore(ratelimit.DefaultConfig(), nil, discard)
	authority := session.NewAuthority(nil, 0, nil, discard)
	timing := auth.NewTimingDelay(auth.TimingConfig{})

	service := NewLoginService(
		security.NewSanitizer(0),
		csrf,
		limiter,
		authority,
		verifier,
		policy,
		timing,
		recorder,
		discard,
		pkglogger.NewAuditLogger(discard),
		opts,
	)
	return &serviceFixture{service: service, csrf: csrf, limiter: limiter, authority: authority}
}

func goodCreds() models.Credentials {
	return models.Credentials{
		Email:     "User@Example.com",
		Password:  "Str0ng!Passw0rd",
		ClientIP:  "203.0.113.1",
		UserAgent: "test-agent",
	}
}

func TestSecureLogin_Success(t *testing.T) {
	f := newFixture(t, acceptAll(), &stubPolicy{}, nil, LoginOptions{})

	result := f.service.SecureLogin(context.Background(), goodCreds())

	require.True(t, result.Success)
	assert.Equal(t, StageSuccess, result.Stage)
	require.NotNil(t, result.Session)
	assert.Equal(t, "user-1", result.Session.UserID)
	require.NotNil(t, result.User)
	assert.Empty(t, result.Error)
	assert.False(t, result.RequiresMFA)

	// The session is live in the authority
	_, ok := f.authority.Session(result.Session.ID)
	assert.True(t, ok)
}

func TestSecureLogin_SuccessResetsLimiter(t *testing.T) {
	calls := 0
	verifier := &stubVerifier{verify: func(ctx context.Context, email, password string) (*VerifyOutcome, error) {
		calls++
		if calls <= 3 {
			return &VerifyOutcome{Success: false}, nil
		}
		return &VerifyOutcome{Success: true, User: &models.User{ID: "user-1", Email: email}}, nil
	}}
	f := newFixture(t, verifier, &stubPolicy{}, nil, LoginOptions{})

	creds := goodCreds()
	for i := 0; i < 3; i++ {
		res := f.service.SecureLogin(context.Background(), creds)
		require.False(t, res.Success)
	}

	identifier := ratelimit.Identifier("user@example.com", creds.ClientIP)
	snapshot, ok := f.limiter.Snapshot(identifier)
	require.True(t, ok)
	assert.Equal(t, 3, snapshot.Attempts)

	res := f.service.SecureLogin(context.Background(), creds)
	require.True(t, res.Success)

	_, ok = f.limiter.Snapshot(identifier)
	assert.False(t, ok, "successful login should clear the failure window")
}

func TestSecureLogin_InvalidEmailRejectedBeforeVerify(t *testing.T) {
	verifier := acceptAll()
	f := newFixture(t, verifier, &stubPolicy{}, nil, LoginOptions{})

	creds := goodCreds()
	creds.Email = "<script>evil()</script>@example.com"

	result := f.service.SecureLogin(context.Background(), creds)

	assert.False(t, result.Success)
	assert.Equal(t, StageInvalidEmail, result.Stage)
	assert.Equal(t, "Invalid email format", result.Error)
	assert.Zero(t, verifier.callCount())

	// A malformed probe must not consume the real user's window
	identifier := ratelimit.Identifier("user@example.com", creds.ClientIP)
	_, ok := f.limiter.Snapshot(identifier)
	assert.False(t, ok)
}

func TestSecureLogin_InvalidEmailStillAuditsThreatFlags(t *testing.T) {
	var buf bytes.Buffer
	discard := slog.New(slog.NewJSONHandler(io.Discard, nil))
	auditSink := slog.New(slog.NewJSONHandler(&buf, nil))

	service := NewLoginService(
		security.NewSanitizer(0),
		security.NewCSRFTokenManager(0, nil),
		ratelimit.NewMemoryStore(ratelimit.DefaultConfig(), nil, discard),
		session.NewAuthority(nil, 0, nil, discard),
		acceptAll(),
		&stubPolicy{},
		auth.NewTimingDelay(auth.TimingConfig{}),
		nil,
		discard,
		pkglogger.NewAuditLogger(auditSink),
		LoginOptions{},
	)

	creds := goodCreds()
	creds.Email = "<script>alert(1)</script>@example.com"

	result := service.SecureLogin(context.Background(), creds)

	// The rejection reason stays invalid email, but the raw-input scan
	// still surfaces what the payload carried.
	assert.Equal(t, StageInvalidEmail, result.Stage)
	assert.Contains(t, buf.String(), "security_flags")
	assert.Contains(t, buf.String(), "cross-site scripting pattern")
}

func TestSecureLogin_SuspiciousPassword(t *testing.T) {
	verifier := acceptAll()
	f := newFixture(t, verifier, &stubPolicy{}, nil, LoginOptions{})

	creds := goodCreds()
	creds.Password = "' OR '1'='1' --"

	result := f.service.SecureLogin(context.Background(), creds)

	assert.False(t, result.Success)
	assert.Equal(t, StageSuspicious, result.Stage)
	assert.Equal(t, "Invalid request", result.Error)
	assert.Zero(t, verifier.callCount())
}

func TestSecureLogin_ShortPassword(t *testing.T) {
	f := newFixture(t, acceptAll(), &stubPolicy{}, nil, LoginOptions{})

	creds := goodCreds()
	creds.Password = "short1!"

	result := f.service.SecureLogin(context.Background(), creds)

	assert.False(t, result.Success)
	assert.Equal(t, StageInvalidPassword, result.Stage)
	assert.Equal(t, "Invalid credentials", result.Error)
}

func TestSecureLogin_Lockout(t *testing.T) {
	verifier := rejectAll()
	f := newFixture(t, verifier, &stubPolicy{}, nil, LoginOptions{})

	creds := goodCreds()
	for i := 0; i < 5; i++ {
		res := f.service.SecureLogin(context.Background(), creds)
		require.False(t, res.Success)
		require.Equal(t, StageAuthFailed, res.Stage)
	}

	result := f.service.SecureLogin(context.Background(), creds)

	assert.False(t, result.Success)
	assert.Equal(t, StageRateLimited, result.Stage)
	assert.Contains(t, result.Error, "Too many failed attempts")
	assert.Greater(t, result.RetryAfterSeconds, 0)

	// Blocked before the backend is consulted
	assert.Equal(t, 5, verifier.callCount())
}

func TestSecureLogin_CSRFMismatch(t *testing.T) {
	verifier := acceptAll()
	f := newFixture(t, verifier, &stubPolicy{}, nil, LoginOptions{})

	creds := goodCreds()
	creds.DeviceFingerprint = "device-1"

	_, err := f.csrf.Issue("device-1")
	require.NoError(t, err)
	creds.CSRFToken = "0000000000000000000000000000000000000000000000000000000000000000"

	result := f.service.SecureLogin(context.Background(), creds)

	assert.False(t, result.Success)
	assert.Equal(t, StageCSRF, result.Stage)
	assert.Equal(t, "Invalid request token", result.Error)
	assert.Zero(t, verifier.callCount())
}

func TestSecureLogin_CSRFMatchAndEmptySkip(t *testing.T) {
	f := newFixture(t, acceptAll(), &stubPolicy{}, nil, LoginOptions{})

	// A valid token for the client context passes
	creds := goodCreds()
	creds.DeviceFingerprint = "device-1"
	token, err := f.csrf.Issue("device-1")
	require.NoError(t, err)
	creds.CSRFToken = token

	result := f.service.SecureLogin(context.Background(), creds)
	assert.True(t, result.Success)

	// An empty token skips the check entirely
	creds = goodCreds()
	result = f.service.SecureLogin(context.Background(), creds)
	assert.True(t, result.Success)
}

func TestSecureLogin_VerifyTimeoutDoesNotConsumeSlot(t *testing.T) {
	verifier := &stubVerifier{verify: func(ctx context.Context, email, password string) (*VerifyOutcome, error) {
		return nil, context.DeadlineExceeded
	}}
	f := newFixture(t, verifier, &stubPolicy{}, nil, LoginOptions{})

	creds := goodCreds()
	result := f.service.SecureLogin(context.Background(), creds)

	assert.False(t, result.Success)
	assert.Equal(t, StageVerifyTimeout, result.Stage)
	assert.Contains(t, result.Error, "try again")

	identifier := ratelimit.Identifier("user@example.com", creds.ClientIP)
	_, ok := f.limiter.Snapshot(identifier)
	assert.False(t, ok, "a timeout is retryable and must not count against the window")
}

func TestSecureLogin_BackendErrorConsumesSlot(t *testing.T) {
	verifier := &stubVerifier{verify: func(ctx context.Context, email, password string) (*VerifyOutcome, error) {
		return nil, errors.New("connection refused")
	}}
	f := newFixture(t, verifier, &stubPolicy{}, nil, LoginOptions{})

	creds := goodCreds()
	result := f.service.SecureLogin(context.Background(), creds)

	assert.False(t, result.Success)
	assert.Equal(t, StageAuthFailed, result.Stage)
	assert.Equal(t, "Authentication is temporarily unavailable", result.Error)

	identifier := ratelimit.Identifier("user@example.com", creds.ClientIP)
	snapshot, ok := f.limiter.Snapshot(identifier)
	require.True(t, ok)
	assert.Equal(t, 1, snapshot.Attempts)
}

func TestSecureLogin_GenericAuthErrors(t *testing.T) {
	verifier := &stubVerifier{verify: func(ctx context.Context, email, password string) (*VerifyOutcome, error) {
		return &VerifyOutcome{Success: false, ErrorMessage: "no such account"}, nil
	}}

	f := newFixture(t, verifier, &stubPolicy{}, nil, LoginOptions{})
	result := f.service.SecureLogin(context.Background(), goodCreds())
	assert.Equal(t, "no such account", result.Error)

	f = newFixture(t, verifier, &stubPolicy{}, nil, LoginOptions{GenericAuthErrors: true})
	result = f.service.SecureLogin(context.Background(), goodCreds())
	assert.Equal(t, "Invalid credentials", result.Error)
}

func TestSecureLogin_MissingIdentity(t *testing.T) {
	verifier := &stubVerifier{verify: func(ctx context.Context, email, password string) (*VerifyOutcome, error) {
		return &VerifyOutcome{Success: true}, nil
	}}
	f := newFixture(t, verifier, &stubPolicy{}, nil, LoginOptions{})

	result := f.service.SecureLogin(context.Background(), goodCreds())

	assert.False(t, result.Success)
	assert.Equal(t, StageNoSession, result.Stage)
	assert.Nil(t, result.Session)
}

func TestSecureLogin_MFARequired(t *testing.T) {
	f := newFixture(t, acceptAll(), &stubPolicy{required: true}, nil, LoginOptions{})

	result := f.service.SecureLogin(context.Background(), goodCreds())

	require.True(t, result.Success)
	assert.True(t, result.RequiresMFA)
	assert.Equal(t, StageMFARequired, result.Stage)
	assert.Len(t, result.MFAToken, 64)

	// No session or identity leaks before the second factor
	assert.Nil(t, result.Session)
	assert.Nil(t, result.User)

	challenge, ok := f.authority.ConsumeChallenge(result.MFAToken)
	require.True(t, ok)
	assert.Equal(t, "user-1", challenge.UserID)
}

func TestSecureLogin_MFAPolicyError(t *testing.T) {
	f := newFixture(t, acceptAll(), &stubPolicy{err: errors.New("policy store down")}, nil, LoginOptions{})

	result := f.service.SecureLogin(context.Background(), goodCreds())

	assert.False(t, result.Success)
	assert.Equal(t, StageUnexpected, result.Stage)
	assert.Equal(t, "An unexpected error occurred", result.Error)
}

func TestSecureLogin_PanicRecovery(t *testing.T) {
	verifier := &stubVerifier{verify: func(ctx context.Context, email, password string) (*VerifyOutcome, error) {
		panic("verifier blew up")
	}}
	f := newFixture(t, verifier, &stubPolicy{}, nil, LoginOptions{})

	result := f.service.SecureLogin(context.Background(), goodCreds())

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, StageUnexpected, result.Stage)
	assert.Equal(t, "An unexpected error occurred", result.Error)
}

func TestSecureLogin_WeakPasswordWarningsAreAdvisory(t *testing.T) {
	f := newFixture(t, acceptAll(), &stubPolicy{}, nil, LoginOptions{})

	creds := goodCreds()
	creds.Password = "password1"

	result := f.service.SecureLogin(context.Background(), creds)

	require.True(t, result.Success, "weak passwords warn but never block")
	assert.NotEmpty(t, result.SecurityWarnings)
}

func TestSecureLogin_RecordsFailedAttempt(t *testing.T) {
	recorder := newStubRecorder()
	f := newFixture(t, rejectAll(), &stubPolicy{}, recorder, LoginOptions{})

	creds := goodCreds()
	creds.DeviceFingerprint = "device-1"
	f.service.SecureLogin(context.Background(), creds)

	select {
	case attempt := <-recorder.attempts:
		assert.Equal(t, "user@example.com", attempt.Email)
		assert.Equal(t, creds.ClientIP, attempt.IPAddress)
		assert.Equal(t, "device-1", attempt.DeviceFingerprint)
		assert.False(t, attempt.Success)
		assert.Equal(t, StageAuthFailed, attempt.Stage)
		require.NotNil(t, attempt.FailureReason)
		assert.Equal(t, "invalid_credentials", *attempt.FailureReason)
	case <-time.After(2 * time.Second):
		t.Fatal("attempt was never recorded")
	}
}

func TestSecureLogin_CancelledCallerStillCompletes(t *testing.T) {
	f := newFixture(t, rejectAll(), &stubPolicy{}, nil, LoginOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	creds := goodCreds()
	result := f.service.SecureLogin(ctx, creds)

	// The failure still lands in the limiter even though the caller hung up
	assert.Equal(t, StageAuthFailed, result.Stage)
	identifier := ratelimit.Identifier("user@example.com", creds.ClientIP)
	snapshot, ok := f.limiter.Snapshot(identifier)
	require.True(t, ok)
	assert.Equal(t, 1, snapshot.Attempts)
}

func TestFormatRetry(t *testing.T) {
	assert.Equal(t, "a moment", formatRetry(0))
	assert.Equal(t, "under a minute", formatRetry(20*time.Second))
	assert.Equal(t, "30m", formatRetry(30*time.Minute))
	assert.Equal(t, "1h30m", formatRetry(90*time.Minute))
}
