package routes

import (
	"github.com/gatehouselabs/gatehouse/internal/auth"
	"github.com/gatehouselabs/gatehouse/internal/handlers"
	"github.com/gatehouselabs/gatehouse/internal/middleware"
	"github.com/gatehouselabs/gatehouse/internal/session"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	loginHandler *handlers.LoginHandler,
	mfaHandler *handlers.MFAHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	authority *session.Authority,
) {
	// Per-IP flood control in front of the per-identifier limiter inside
	// the pipeline.
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes - no authentication required
	router.Get("/auth/csrf", loginHandler.IssueCSRFToken)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", loginHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/mfa/verify", mfaHandler.Verify)
	router.Post("/auth/password/strength", loginHandler.CheckPasswordStrength)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(tokenManager, authority))

		r.Get("/auth/session", loginHandler.Session)
		r.Post("/auth/logout", loginHandler.Logout)
		r.Post("/auth/mfa/enroll", mfaHandler.Enroll)

		// Operational views
		r.Get("/admin/ratelimit", adminHandler.GetRateLimitStatus)
		r.Get("/admin/attempts", adminHandler.GetRecentAttempts)
	})
}
