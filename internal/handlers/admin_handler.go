package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gatehouselabs/gatehouse/internal/ratelimit"
	"github.com/gatehouselabs/gatehouse/internal/repositories"
	"github.com/gatehouselabs/gatehouse/internal/services"
	pkghttp "github.com/gatehouselabs/gatehouse/pkg/http"
)

// AdminHandler exposes operational views of the login pipeline: rate limit
// state and the persisted attempt trail. All routes sit behind session auth.
type AdminHandler struct {
	loginService *services.LoginService
	attemptRepo  *repositories.LoginAttemptRepository // optional
}

// NewAdminHandler creates a new AdminHandler. attemptRepo may be nil when
// no database is configured.
func NewAdminHandler(loginService *services.LoginService, attemptRepo *repositories.LoginAttemptRepository) *AdminHandler {
	return &AdminHandler{
		loginService: loginService,
		attemptRepo:  attemptRepo,
	}
}

// RateLimitStatusResponse wraps a limiter snapshot for one identifier.
type RateLimitStatusResponse struct {
	Identifier string              `json:"identifier"`
	Tracked    bool                `json:"tracked"`
	Snapshot   *ratelimit.Snapshot `json:"snapshot,omitempty"`
}

// GetRateLimitStatus handles GET /admin/ratelimit?email=...&ip=...
func (h *AdminHandler) GetRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	ip := r.URL.Query().Get("ip")
	if email == "" || ip == "" {
		pkghttp.WriteBadRequest(w, "email and ip query parameters are required")
		return
	}

	identifier := ratelimit.Identifier(email, ip)
	resp := RateLimitStatusResponse{Identifier: identifier}

	if snapshot, ok := h.loginService.RateLimitSnapshot(identifier); ok {
		resp.Tracked = true
		resp.Snapshot = &snapshot
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetRecentAttempts handles GET /admin/attempts?email=...&limit=N
func (h *AdminHandler) GetRecentAttempts(w http.ResponseWriter, r *http.Request) {
	if h.attemptRepo == nil {
		pkghttp.WriteNotFound(w, "Attempt history is not configured")
		return
	}

	email := r.URL.Query().Get("email")
	if email == "" {
		pkghttp.WriteBadRequest(w, "email query parameter is required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			pkghttp.WriteBadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	attempts, err := h.attemptRepo.GetRecentAttempts(r.Context(), email, limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve login attempts")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(attempts)
}
