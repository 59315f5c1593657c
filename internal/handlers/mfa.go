package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gatehouselabs/gatehouse/internal/auth"
	"github.com/gatehouselabs/gatehouse/internal/models"
	"github.com/gatehouselabs/gatehouse/internal/services"
	pkghttp "github.com/gatehouselabs/gatehouse/pkg/http"
)

// MFAHandler handles the MFA challenge exchange and enrollment.
type MFAHandler struct {
	mfaService *services.MFAService
	tokens     *auth.TokenManager
	ipConfig   *pkghttp.IPConfig
}

// NewMFAHandler creates a new MFA handler
func NewMFAHandler(mfaService *services.MFAService, tokens *auth.TokenManager, ipConfig *pkghttp.IPConfig) *MFAHandler {
	return &MFAHandler{
		mfaService: mfaService,
		tokens:     tokens,
		ipConfig:   ipConfig,
	}
}

// MFAVerifyRequest represents the request body for the challenge exchange
type MFAVerifyRequest struct {
	MFAToken string `json:"mfa_token" validate:"required,min=16,max=128"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

// MFAEnrollResponse represents the provisioning material returned at setup
type MFAEnrollResponse struct {
	Secret    string `json:"secret"`
	URL       string `json:"url"`
	QRDataURL string `json:"qr_data_url"`
}

// Verify exchanges a pending challenge token and TOTP code for a session.
// The challenge is single-use; a wrong code sends the caller back to login.
// @Router /auth/mfa/verify [post]
func (h *MFAHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req MFAVerifyRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.mfaService.VerifyChallenge(r.Context(), req.MFAToken, req.Code, clientIP)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrChallengeExpired),
			errors.Is(err, models.ErrInvalidMFACode):
			pkghttp.WriteUnauthorized(w, "MFA verification failed")
		case errors.Is(err, models.ErrNotEnrolled):
			pkghttp.WriteForbidden(w, "MFA not configured for this account")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	resp := LoginResponse{Result: result}
	token, err := h.tokens.MintSessionToken(result.Session)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	resp.Token = token

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// Enroll provisions a fresh TOTP secret for the authenticated user.
// @Router /auth/mfa/enroll [post]
func (h *MFAHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r)
	if sess == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	enrollment, err := h.mfaService.Enroll(r.Context(), sess.UserID, sess.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(MFAEnrollResponse{
		Secret:    enrollment.Secret,
		URL:       enrollment.URL,
		QRDataURL: enrollment.QRDataURL,
	})
}
