package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gatehouselabs/gatehouse/internal/auth"
	"github.com/gatehouselabs/gatehouse/internal/metrics"
	"github.com/gatehouselabs/gatehouse/internal/models"
	"github.com/gatehouselabs/gatehouse/internal/security"
	"github.com/gatehouselabs/gatehouse/internal/services"
	"github.com/gatehouselabs/gatehouse/internal/session"
	pkghttp "github.com/gatehouselabs/gatehouse/pkg/http"
)

// DeviceFingerprintHeader carries the client-computed device fingerprint.
// When absent, CSRF tokens are scoped to the client IP instead.
const DeviceFingerprintHeader = "X-Device-Fingerprint"

// LoginHandler exposes the login pipeline over HTTP.
type LoginHandler struct {
	loginService *services.LoginService
	csrf         *security.CSRFTokenManager
	authority    *session.Authority
	tokens       *auth.TokenManager
	ipConfig     *pkghttp.IPConfig
}

// NewLoginHandler creates a new LoginHandler
func NewLoginHandler(
	loginService *services.LoginService,
	csrf *security.CSRFTokenManager,
	authority *session.Authority,
	tokens *auth.TokenManager,
	ipConfig *pkghttp.IPConfig,
) *LoginHandler {
	return &LoginHandler{
		loginService: loginService,
		csrf:         csrf,
		authority:    authority,
		tokens:       tokens,
		ipConfig:     ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email      string `json:"email" validate:"required,max=320"`
	Password   string `json:"password" validate:"required,max=1024"`
	CSRFToken  string `json:"csrf_token,omitempty" validate:"omitempty,max=128"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

// LoginResponse wraps the pipeline result with the signed edge token.
type LoginResponse struct {
	*models.Result
	Token string `json:"token,omitempty"`
}

// CSRFTokenResponse represents the response for CSRF token provisioning
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// SessionResponse represents the session introspection response
type SessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	ExpiresAt string `json:"expires_at"`
}

// Login runs one attempt through the security pipeline. The pipeline never
// returns an error; the failing gate picks the status code.
// @Router /auth/login [post]
func (h *LoginHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	// Validate request
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	creds := models.Credentials{
		Email:             req.Email,
		Password:          req.Password,
		CSRFToken:         req.CSRFToken,
		RememberMe:        req.RememberMe,
		DeviceFingerprint: r.Header.Get(DeviceFingerprintHeader),
		ClientIP:          pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:         r.Header.Get("User-Agent"),
	}

	result := h.loginService.SecureLogin(r.Context(), creds)

	resp := LoginResponse{Result: result}
	if result.Success && result.Session != nil {
		token, err := h.tokens.MintSessionToken(result.Session)
		if err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		resp.Token = token
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForResult(result))
	json.NewEncoder(w).Encode(resp)
}

// IssueCSRFToken provisions a CSRF token bound to the caller's client
// context. Clients must present it on subsequent login requests.
// @Router /auth/csrf [get]
func (h *LoginHandler) IssueCSRFToken(w http.ResponseWriter, r *http.Request) {
	clientContext := r.Header.Get(DeviceFingerprintHeader)
	if clientContext == "" {
		clientContext = pkghttp.ExtractClientIP(r, h.ipConfig)
	}

	token, err := h.csrf.Issue(clientContext)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(CSRFTokenResponse{CSRFToken: token})
}

// Session returns the caller's resolved session. Requires a valid bearer
// token.
// @Router /auth/session [get]
func (h *LoginHandler) Session(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r)
	if sess == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SessionResponse{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout revokes the caller's session.
// @Router /auth/logout [post]
func (h *LoginHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r)
	if sess == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	h.authority.Revoke(sess.ID)
	metrics.SessionsActive.Dec()

	w.WriteHeader(http.StatusNoContent)
}

// PasswordStrengthRequest represents the request body for the strength advisor
type PasswordStrengthRequest struct {
	Password string `json:"password" validate:"required,max=1024"`
}

// CheckPasswordStrength scores a candidate password. Advisory only; the
// login pipeline never rejects on strength.
// @Router /auth/password/strength [post]
func (h *LoginHandler) CheckPasswordStrength(w http.ResponseWriter, r *http.Request) {
	var req PasswordStrengthRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	report := security.EvaluateStrength(req.Password, security.DefaultMinPasswordLength)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(report)
}

// statusForResult maps the terminal pipeline stage to an HTTP status.
func statusForResult(result *models.Result) int {
	if result.Success {
		return http.StatusOK
	}

	switch result.Stage {
	case services.StageRateLimited:
		return http.StatusTooManyRequests
	case services.StageCSRF:
		return http.StatusForbidden
	case services.StageAuthFailed:
		return http.StatusUnauthorized
	case services.StageVerifyTimeout:
		return http.StatusServiceUnavailable
	case services.StageUnexpected, services.StageNoSession:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
