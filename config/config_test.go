package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigLoading(t *testing.T) {
	t.Run("LoadDefaultConfig", func(t *testing.T) {
		cfg := Load()

		assert.NotNil(t, cfg)
		assert.NotEmpty(t, cfg.JWTSecret)
		assert.Equal(t, "meditrack.db", cfg.DatabaseURL)
		assert.Equal(t, "development", cfg.Environment)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "@meditrack.com", cfg.AdminEmailDomain)
		assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
		assert.Empty(t, cfg.RedisURL)
	})

	t.Run("LoadConfigFromEnvironment", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-jwt-secret")
		t.Setenv("DATABASE_URL", ":memory:")
		t.Setenv("ENVIRONMENT", "test")
		t.Setenv("PORT", "9999")
		t.Setenv("ADMIN_EMAIL_DOMAIN", "@pharmacy.test")
		t.Setenv("CACHE_TTL", "90s")
		t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

		cfg := Load()

		assert.Equal(t, "test-jwt-secret", cfg.JWTSecret)
		assert.Equal(t, ":memory:", cfg.DatabaseURL)
		assert.Equal(t, "test", cfg.Environment)
		assert.Equal(t, "9999", cfg.Port)
		assert.Equal(t, "@pharmacy.test", cfg.AdminEmailDomain)
		assert.Equal(t, 90*time.Second, cfg.CacheTTL)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	})

	t.Run("MalformedNumbersFallBackToDefaults", func(t *testing.T) {
		t.Setenv("JWT_EXPIRATION", "soon")
		t.Setenv("ENABLE_TRACING", "maybe")
		t.Setenv("SHUTDOWN_TIMEOUT", "forever")

		cfg := Load()

		assert.Equal(t, 24*60*60, cfg.JWTExpiration)
		assert.False(t, cfg.EnableTracing)
		assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("DefaultsAreValid", func(t *testing.T) {
		assert.NoError(t, Load().Validate())
	})

	t.Run("MissingFields", func(t *testing.T) {
		invalidCfg := &Config{
			JWTSecret:   "",
			DatabaseURL: "",
			Environment: "invalid",
		}
		assert.Error(t, invalidCfg.Validate())
	})

	t.Run("UnknownEnvironment", func(t *testing.T) {
		cfg := Load()
		cfg.Environment = "staging"
		assert.ErrorContains(t, cfg.Validate(), "invalid environment")
	})

	t.Run("ShortSecretInProduction", func(t *testing.T) {
		cfg := Load()
		cfg.Environment = "production"
		cfg.JWTSecret = "short"
		assert.ErrorContains(t, cfg.Validate(), "at least 32 characters")
	})

	t.Run("AdminDomainNeedsAtSign", func(t *testing.T) {
		cfg := Load()
		cfg.AdminEmailDomain = "meditrack.com"
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigHelpers(t *testing.T) {
	cfg := Load()
	cfg.JWTSecret = "super-secret-value"
	cfg.SMTPPassword = "smtp-secret"

	assert.NotContains(t, cfg.String(), "super-secret-value")
	assert.NotContains(t, cfg.String(), "smtp-secret")
	assert.False(t, cfg.SMTPConfigured())
	assert.False(t, cfg.GoogleOAuthConfigured())
	assert.Equal(t, time.Minute, cfg.RateLimitWindowDuration())

	clone := cfg.Clone()
	clone.AllowedOrigins[0] = "https://changed.example"
	assert.NotEqual(t, cfg.AllowedOrigins[0], clone.AllowedOrigins[0])
}
