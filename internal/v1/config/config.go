package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Default limits for the gateway. DefaultMaxClientsPerDocument is the hard
// per-document connection cap; DefaultMaxTokenLifetimeSec bounds accepted
// token lifetimes.
const (
	DefaultMaxClientsPerDocument = 1_000_000
	DefaultMaxTokenLifetimeSec   = 3600
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	Port string

	// Token validation
	JWTSecret          string
	TenantAuthEndpoint string
	TenantAuthDomain   string
	TenantAuthAudience string

	// Admission control
	MaxClientsPerDocument int
	MaxTokenLifetimeSec   int64
	TokenExpiryEnabled    bool

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	RedisEnabled    bool
	RedisAddr       string
	RedisPassword   string
	DevelopmentMode bool
	AllowedOrigins  string
	OtelCollector   string

	// Rate limits (ulule "count-period" format)
	RateLimitConnect  string
	RateLimitSubmitOp string
}

// ValidateEnv validates all required environment variables and returns a Config object.
// Returns an error if any required variable is missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Required: JWT_SECRET (minimum 32 characters) unless tenant JWKS is configured
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.TenantAuthDomain = os.Getenv("TENANT_AUTH_DOMAIN")
	cfg.TenantAuthAudience = os.Getenv("TENANT_AUTH_AUDIENCE")
	if cfg.JWTSecret == "" && cfg.TenantAuthDomain == "" {
		errs = append(errs, "JWT_SECRET or TENANT_AUTH_DOMAIN is required")
	} else if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.JWTSecret)))
	}

	// Optional: TENANT_AUTH_ENDPOINT (tenant manager REST endpoint)
	cfg.TenantAuthEndpoint = os.Getenv("TENANT_AUTH_ENDPOINT")

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Admission control knobs
	cfg.MaxClientsPerDocument = DefaultMaxClientsPerDocument
	if raw := os.Getenv("MAX_CLIENTS_PER_DOC"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			errs = append(errs, fmt.Sprintf("MAX_CLIENTS_PER_DOC must be a positive integer (got '%s')", raw))
		} else {
			cfg.MaxClientsPerDocument = n
		}
	}

	cfg.MaxTokenLifetimeSec = DefaultMaxTokenLifetimeSec
	if raw := os.Getenv("MAX_TOKEN_LIFETIME_SEC"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			errs = append(errs, fmt.Sprintf("MAX_TOKEN_LIFETIME_SEC must be a positive integer (got '%s')", raw))
		} else {
			cfg.MaxTokenLifetimeSec = n
		}
	}

	cfg.TokenExpiryEnabled = os.Getenv("TOKEN_EXPIRY_ENABLED") == "true"

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.OtelCollector = os.Getenv("OTEL_COLLECTOR_ADDR")

	// Rate limits (M = Minute, H = Hour). Empty string disables a throttler.
	cfg.RateLimitConnect = getEnvOrDefault("RATE_LIMIT_CONNECT", "100-M")
	cfg.RateLimitSubmitOp = getEnvOrDefault("RATE_LIMIT_SUBMIT_OP", "2000-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"jwt_secret", redactSecret(cfg.JWTSecret),
		"port", cfg.Port,
		"tenant_auth_endpoint", cfg.TenantAuthEndpoint,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"max_clients_per_doc", cfg.MaxClientsPerDocument,
		"max_token_lifetime_sec", cfg.MaxTokenLifetimeSec,
		"token_expiry_enabled", cfg.TokenExpiryEnabled,
		"go_env", cfg.GoEnv,
		"development_mode", cfg.DevelopmentMode,
		"rate_limit_connect", cfg.RateLimitConnect,
		"rate_limit_submit_op", cfg.RateLimitSubmitOp,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
