package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouselabs/gatehouse/internal/auth"
	"github.com/gatehouselabs/gatehouse/internal/services"
	"github.com/gatehouselabs/gatehouse/internal/session"
	pkghttp "github.com/gatehouselabs/gatehouse/pkg/http"
	pkglogger "github.com/gatehouselabs/gatehouse/pkg/logger"
)

type mfaFixture struct {
	handler   *MFAHandler
	service   *services.MFAService
	authority *session.Authority
	tokens    *auth.TokenManager
}

func newMFAFixture(t *testing.T) *mfaFixture {
	t.Helper()

	discard := slog.New(slog.NewJSONHandler(io.Discard, nil))
	authority := session.NewAuthority(nil, 0, nil, discard)
	tokens := auth.NewTokenManager("test-secret-32-characters-long!!")

	service := services.NewMFAService(
		auth.NewTOTPManager("Gatehouse Test"),
		services.NewMemorySecretSource(),
		authority,
		discard,
		pkglogger.NewAuditLogger(discard),
	)

	return &mfaFixture{
		handler:   NewMFAHandler(service, tokens, &pkghttp.IPConfig{}),
		service:   service,
		authority: authority,
		tokens:    tokens,
	}
}

func TestMFAVerify_Success(t *testing.T) {
	f := newMFAFixture(t)

	enrollment, err := f.service.Enroll(context.Background(), "user-1", "user@example.com")
	require.NoError(t, err)
	challenge, err := f.authority.IssueMFAChallenge("user-1")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	recorder := postJSON(t, f.handler.Verify, "/auth/mfa/verify", MFAVerifyRequest{
		MFAToken: challenge.Token,
		Code:     code,
	})

	require.Equal(t, http.StatusOK, recorder.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Session)
	assert.NotEmpty(t, resp.Token)

	claims, err := f.tokens.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Session.ID, claims.SessionID)
}

func TestMFAVerify_WrongCode(t *testing.T) {
	f := newMFAFixture(t)

	_, err := f.service.Enroll(context.Background(), "user-1", "user@example.com")
	require.NoError(t, err)
	challenge, err := f.authority.IssueMFAChallenge("user-1")
	require.NoError(t, err)

	recorder := postJSON(t, f.handler.Verify, "/auth/mfa/verify", MFAVerifyRequest{
		MFAToken: challenge.Token,
		Code:     "000000",
	})

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestMFAVerify_NotEnrolled(t *testing.T) {
	f := newMFAFixture(t)

	challenge, err := f.authority.IssueMFAChallenge("user-1")
	require.NoError(t, err)

	recorder := postJSON(t, f.handler.Verify, "/auth/mfa/verify", MFAVerifyRequest{
		MFAToken: challenge.Token,
		Code:     "123456",
	})

	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestMFAVerify_ValidationRejectsShortCode(t *testing.T) {
	f := newMFAFixture(t)

	recorder := postJSON(t, f.handler.Verify, "/auth/mfa/verify", MFAVerifyRequest{
		MFAToken: "0123456789abcdef0123456789abcdef",
		Code:     "123",
	})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestMFAVerify_UnknownChallenge(t *testing.T) {
	f := newMFAFixture(t)

	recorder := postJSON(t, f.handler.Verify, "/auth/mfa/verify", MFAVerifyRequest{
		MFAToken: "0123456789abcdef0123456789abcdef",
		Code:     "123456",
	})

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestMFAEnroll(t *testing.T) {
	f := newMFAFixture(t)

	sess, err := f.authority.IssueSession("user-1")
	require.NoError(t, err)
	token, err := f.tokens.MintSessionToken(sess)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/auth/mfa/enroll", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()

	protected := auth.RequireSession(f.tokens, f.authority)
	protected(http.HandlerFunc(f.handler.Enroll)).ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var resp MFAEnrollResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Secret)
	assert.Contains(t, resp.URL, "otpauth://totp/")
	assert.Contains(t, resp.QRDataURL, "data:image/png;base64,")
}

func TestMFAEnroll_Unauthenticated(t *testing.T) {
	f := newMFAFixture(t)

	req := httptest.NewRequest("POST", "/auth/mfa/enroll", nil)
	recorder := httptest.NewRecorder()

	protected := auth.RequireSession(f.tokens, f.authority)
	protected(http.HandlerFunc(f.handler.Enroll)).ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
