package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatehouselabs/gatehouse/internal/auth"
	"github.com/gatehouselabs/gatehouse/internal/background"
	"github.com/gatehouselabs/gatehouse/internal/config"
	"github.com/gatehouselabs/gatehouse/internal/database"
	"github.com/gatehouselabs/gatehouse/internal/handlers"
	"github.com/gatehouselabs/gatehouse/internal/metrics"
	middlewareCustom "github.com/gatehouselabs/gatehouse/internal/middleware"
	"github.com/gatehouselabs/gatehouse/internal/ratelimit"
	"github.com/gatehouselabs/gatehouse/internal/repositories"
	"github.com/gatehouselabs/gatehouse/internal/routes"
	"github.com/gatehouselabs/gatehouse/internal/security"
	"github.com/gatehouselabs/gatehouse/internal/services"
	"github.com/gatehouselabs/gatehouse/internal/session"
	pkghttp "github.com/gatehouselabs/gatehouse/pkg/http"
	pkglogger "github.com/gatehouselabs/gatehouse/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Database is optional; without it the service runs fully in-memory and
	// the attempt trail is disabled.
	var db *database.DB
	var attemptRepo *repositories.LoginAttemptRepository
	if cfg.DatabaseConfigured() {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := database.Migrate(migrateCtx, cfg.Database.DSN()); err != nil {
			cancel()
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
		cancel()

		db, err = database.NewConnection(&cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		attemptRepo = repositories.NewLoginAttemptRepository(db)
	} else {
		logger.Info("no database configured, attempt history disabled")
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Security gates
	sanitizer := security.NewSanitizer(cfg.Security.MinPasswordLength)
	csrfManager := security.NewCSRFTokenManager(cfg.Security.CSRFTokenTTL, nil)
	limiter := ratelimit.NewMemoryStore(ratelimit.Config{
		MaxAttempts:   cfg.Security.MaxAttempts,
		Window:        cfg.Security.RateLimitWindow,
		BlockDuration: cfg.Security.BlockDuration,
	}, nil, logger)
	authority := session.NewAuthority(nil, cfg.Security.SessionTimeout, nil, logger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Security.BaseDelayMs,
		RandomDelayMs: cfg.Security.RandomDelayMs,
	})

	// Credential verification backend; without an endpoint the local bcrypt
	// verifier serves development deployments.
	var verifier services.CredentialVerifier
	if cfg.Auth.VerifyEndpoint != "" {
		verifier = services.NewHTTPVerifier(cfg.Auth.VerifyEndpoint, nil)
	} else {
		local := services.NewBcryptVerifier()
		if email, password := os.Getenv("DEV_USER_EMAIL"), os.Getenv("DEV_USER_PASSWORD"); email != "" && password != "" {
			if err := local.AddUser(email, "Dev User", password); err != nil {
				logger.Error("failed to seed dev user", slog.Any("error", err))
				os.Exit(1)
			}
		}
		logger.Warn("no VERIFY_ENDPOINT configured, using local credential verifier")
		verifier = local
	}

	mfaPolicy := services.NewStaticMFAPolicy(cfg.Security.MFARequireAll)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret)
	totpManager := auth.NewTOTPManager(cfg.Auth.MFAIssuer)

	// Services
	loginService := services.NewLoginService(
		sanitizer,
		csrfManager,
		limiter,
		authority,
		verifier,
		mfaPolicy,
		timingDelay,
		attemptRecorder(attemptRepo),
		logger,
		auditLogger,
		services.LoginOptions{
			VerifyTimeout:     cfg.Security.VerifyTimeout,
			GenericAuthErrors: cfg.Security.GenericAuthErrors,
			AttemptRetention:  cfg.Security.AttemptRetention,
		},
	)
	mfaService := services.NewMFAService(totpManager, services.NewMemorySecretSource(), authority, logger, auditLogger)

	// Handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	loginHandler := handlers.NewLoginHandler(loginService, csrfManager, authority, tokenManager, ipConfig)
	mfaHandler := handlers.NewMFAHandler(mfaService, tokenManager, ipConfig)
	adminHandler := handlers.NewAdminHandler(loginService, attemptRepo)

	// Cleanup manager sweeps the in-memory stores and the attempt trail.
	cleanupManager := background.NewCleanupManager(authority, limiter, csrfManager, attemptRepo, logger, cfg.Auth.CleanupInterval)

	// Setup CORS middleware
	corsConfig := middlewareCustom.NewCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(metrics.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, loginHandler, mfaHandler, adminHandler, tokenManager, authority)

	router.Handle("/metrics", metrics.Handler())

	// Health check with database when configured
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := db.HealthCheck(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"healthy","database":"up"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// attemptRecorder avoids handing the login service a typed-nil interface
// when no database is configured.
func attemptRecorder(repo *repositories.LoginAttemptRepository) services.AttemptRecorder {
	if repo == nil {
		return nil
	}
	return repo
}
