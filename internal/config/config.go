package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret       string
	MFAIssuer       string
	VerifyEndpoint  string
	CleanupInterval time.Duration
}

// SecurityConfig holds the login pipeline policy knobs.
type SecurityConfig struct {
	MaxAttempts       int
	RateLimitWindow   time.Duration
	BlockDuration     time.Duration
	SessionTimeout    time.Duration
	VerifyTimeout     time.Duration
	CSRFTokenTTL      time.Duration
	MinPasswordLength int
	GenericAuthErrors bool
	AttemptRetention  time.Duration
	BaseDelayMs       int
	RandomDelayMs     int
	MFARequireAll     bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", ""),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseCommaList(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			JWTSecret:       jwtSecret,
			MFAIssuer:       getEnv("MFA_ISSUER", "Gatehouse"),
			VerifyEndpoint:  getEnv("VERIFY_ENDPOINT", ""),
			CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", 5*time.Minute),
		},
		Security: SecurityConfig{
			MaxAttempts:       getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
			RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			BlockDuration:     getEnvAsDuration("RATE_LIMIT_BLOCK_DURATION", 30*time.Minute),
			SessionTimeout:    getEnvAsDuration("SESSION_TIMEOUT", 8*time.Hour),
			VerifyTimeout:     getEnvAsDuration("VERIFY_TIMEOUT", 5*time.Second),
			CSRFTokenTTL:      getEnvAsDuration("CSRF_TOKEN_TTL", 15*time.Minute),
			MinPasswordLength: getEnvAsInt("MIN_PASSWORD_LENGTH", 8),
			GenericAuthErrors: getEnvAsBool("GENERIC_AUTH_ERRORS", env == "production"),
			AttemptRetention:  getEnvAsDuration("ATTEMPT_RETENTION", 24*time.Hour),
			BaseDelayMs:       getEnvAsInt("LOGIN_BASE_DELAY_MS", 100),
			RandomDelayMs:     getEnvAsInt("LOGIN_RANDOM_DELAY_MS", 100),
			MFARequireAll:     getEnvAsBool("MFA_REQUIRE_ALL", false),
		},
	}

	if cfg.Security.MaxAttempts <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX_ATTEMPTS must be positive")
	}
	if cfg.Security.RateLimitWindow <= 0 || cfg.Security.BlockDuration <= 0 {
		return nil, fmt.Errorf("rate limit window and block duration must be positive")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabaseConfigured reports whether a persistent attempt trail is enabled.
// With no DB_HOST the service runs fully in-memory.
func (c *Config) DatabaseConfigured() bool {
	return c.Database.Host != ""
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseCommaList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://localhost:3001",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
		"http://127.0.0.1:3001",
	}
}
