package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable ValidateEnv reads so tests are hermetic.
// t.Setenv registers the restore; the Unsetenv after it removes the value
// for the test's duration.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "JWT_SECRET", "TENANT_AUTH_DOMAIN", "TENANT_AUTH_AUDIENCE",
		"TENANT_AUTH_ENDPOINT", "REDIS_ENABLED", "REDIS_ADDR", "REDIS_PASSWORD",
		"MAX_CLIENTS_PER_DOC", "MAX_TOKEN_LIFETIME_SEC", "TOKEN_EXPIRY_ENABLED",
		"GO_ENV", "LOG_LEVEL", "DEVELOPMENT_MODE", "ALLOWED_ORIGINS",
		"OTEL_COLLECTOR_ADDR", "RATE_LIMIT_CONNECT", "RATE_LIMIT_SUBMIT_OP",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_SECRET", "a-test-secret-at-least-32-chars-long")
}

func TestValidateEnvMinimal(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "production", cfg.GoEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.RedisEnabled)
	assert.False(t, cfg.TokenExpiryEnabled)
	assert.Equal(t, DefaultMaxClientsPerDocument, cfg.MaxClientsPerDocument)
	assert.Equal(t, int64(DefaultMaxTokenLifetimeSec), cfg.MaxTokenLifetimeSec)
	assert.Equal(t, "100-M", cfg.RateLimitConnect)
	assert.Equal(t, "2000-M", cfg.RateLimitSubmitOp)
}

func TestValidateEnvMissingPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "a-test-secret-at-least-32-chars-long")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT is required")
}

func TestValidateEnvInvalidPort(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("PORT", "99999")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT must be a valid port number")
}

func TestValidateEnvMissingSecretAndDomain(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET or TENANT_AUTH_DOMAIN is required")
}

func TestValidateEnvShortSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_SECRET", "too-short")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestValidateEnvJWKSDomainInsteadOfSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("TENANT_AUTH_DOMAIN", "auth.example.com")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, "auth.example.com", cfg.TenantAuthDomain)
	assert.Empty(t, cfg.JWTSecret)
}

func TestValidateEnvRedis(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("REDIS_PASSWORD", "hunter2")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddr)
	assert.Equal(t, "hunter2", cfg.RedisPassword)
}

func TestValidateEnvRedisBadAddr(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "not-an-addr")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR must be in format")
}

func TestValidateEnvAdmissionKnobs(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("MAX_CLIENTS_PER_DOC", "50")
	t.Setenv("MAX_TOKEN_LIFETIME_SEC", "600")
	t.Setenv("TOKEN_EXPIRY_ENABLED", "true")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.MaxClientsPerDocument)
	assert.Equal(t, int64(600), cfg.MaxTokenLifetimeSec)
	assert.True(t, cfg.TokenExpiryEnabled)
}

func TestValidateEnvBadAdmissionKnobs(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("MAX_CLIENTS_PER_DOC", "zero")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_CLIENTS_PER_DOC")

	setMinimalEnv(t)
	t.Setenv("MAX_TOKEN_LIFETIME_SEC", "-1")

	_, err = ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_TOKEN_LIFETIME_SEC")
}

func TestValidateEnvRateLimitOverrides(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("RATE_LIMIT_CONNECT", "10-S")
	t.Setenv("RATE_LIMIT_SUBMIT_OP", "")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, "10-S", cfg.RateLimitConnect)
	assert.Equal(t, "", cfg.RateLimitSubmitOp)
}

func TestIsValidHostPort(t *testing.T) {
	assert.True(t, isValidHostPort("localhost:6379"))
	assert.True(t, isValidHostPort("10.0.0.1:1"))
	assert.False(t, isValidHostPort("localhost"))
	assert.False(t, isValidHostPort(":6379"))
	assert.False(t, isValidHostPort("localhost:0"))
	assert.False(t, isValidHostPort("localhost:abc"))
}

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "***", redactSecret("short"))
	assert.Equal(t, "12345678***", redactSecret("1234567890abcdef"))
}
