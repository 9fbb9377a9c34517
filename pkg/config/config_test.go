package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slapcommerce/core-sub014/pkg/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", testSecret)
	t.Setenv("ADMIN_PASSWORD_HASH", "$argon2id$stub")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "file:commerce.db", cfg.DatabaseDSN)
	assert.Equal(t, "admin", cfg.AdminPrincipal)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.False(t, cfg.NATSEmbedded)
	assert.Equal(t, 5, cfg.SchedulerMaxAttempts)
	assert.Empty(t, cfg.TrustedOrigins)
	assert.Equal(t, "http://localhost:8080", cfg.AuthBaseURL)
	assert.Equal(t, "X-Forwarded-For", cfg.ClientIPHeader)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_SECRET", testSecret)
	t.Setenv("ADMIN_PASSWORD_HASH", "$argon2id$stub")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("NATS_EMBEDDED", "true")
	t.Setenv("SCHEDULER_MAX_ATTEMPTS", "3")
	t.Setenv("AUTH_TRUSTED_ORIGINS", "https://admin.example.com, https://*.shops.example.com")
	t.Setenv("AUTH_IP_HEADER", "CF-Connecting-IP")
	t.Setenv("AUTH_BASE_URL", "https://admin.example.com")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.NATSEmbedded)
	assert.Equal(t, 3, cfg.SchedulerMaxAttempts)
	assert.Equal(t,
		[]string{"https://admin.example.com", "https://*.shops.example.com"},
		cfg.TrustedOrigins)
	assert.Equal(t, "CF-Connecting-IP", cfg.ClientIPHeader)
	assert.Equal(t, "https://admin.example.com", cfg.AuthBaseURL)
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("AUTH_SECRET", testSecret)
	t.Setenv("ADMIN_PASSWORD_HASH", "$argon2id$stub")
	t.Setenv("AUTH_TRUSTED_ORIGINS", "https://admin.example.com")
	t.Setenv("AUTH_BASE_URL", "https://api.example.com")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"https://admin.example.com", "https://api.example.com"},
		cfg.AllowedOrigins())
}

func TestLoadValidation(t *testing.T) {
	t.Run("MissingSecret", func(t *testing.T) {
		t.Setenv("AUTH_SECRET", "")
		t.Setenv("ADMIN_PASSWORD_HASH", "$argon2id$stub")
		_, err := config.Load()
		assert.ErrorContains(t, err, "AUTH_SECRET")
	})

	t.Run("ShortSecret", func(t *testing.T) {
		t.Setenv("AUTH_SECRET", "too-short")
		t.Setenv("ADMIN_PASSWORD_HASH", "$argon2id$stub")
		_, err := config.Load()
		assert.ErrorContains(t, err, "32 bytes")
	})

	t.Run("MissingPasswordHash", func(t *testing.T) {
		t.Setenv("AUTH_SECRET", testSecret)
		t.Setenv("ADMIN_PASSWORD_HASH", "")
		_, err := config.Load()
		assert.ErrorContains(t, err, "ADMIN_PASSWORD_HASH")
	})
}
