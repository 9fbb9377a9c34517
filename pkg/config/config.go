// Package config loads service configuration from the environment. Every
// knob has a development-friendly default; only the auth material is
// mandatory.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration of the admin service.
type Config struct {
	// ServiceName and Environment label telemetry and logs.
	ServiceName string
	Environment string

	// ListenAddr is the HTTP bind address.
	ListenAddr string

	// DatabaseDSN is the sqlite DSN, e.g. "file:commerce.db".
	DatabaseDSN string

	// AuthSecret signs session tokens. Required.
	AuthSecret string

	// AuthBaseURL is the public URL the admin API is served from. It is
	// always treated as a trusted origin.
	AuthBaseURL string

	// SessionTTL bounds how long an issued session stays valid.
	SessionTTL time.Duration

	// AdminPrincipal and AdminPasswordHash are the provisioned login.
	// The hash is an argon2id encoded string. Required.
	AdminPrincipal    string
	AdminPasswordHash string

	// TrustedOrigins lists browser origins allowed to call the API.
	// Entries may use a single wildcard label, e.g. "https://*.shops.example.com".
	TrustedOrigins []string

	// ClientIPHeader names the proxy header carrying the real client IP.
	ClientIPHeader string

	// NATSURL is the JetStream endpoint for event publication.
	// NATSEmbedded runs an in-process server instead of connecting out,
	// persisting its streams under NATSStoreDir.
	NATSURL      string
	NATSEmbedded bool
	NATSStoreDir string

	// ImageBucketURL opens the rendition bucket, e.g. "file:///var/images"
	// or "mem://" for development. CDNBaseURL is the public prefix in
	// front of it.
	ImageBucketURL string
	CDNBaseURL     string

	// ProjectionPollInterval is how often projections check for new events.
	ProjectionPollInterval time.Duration

	// SchedulerPollInterval and SchedulerMaxAttempts control deferred
	// command execution.
	SchedulerPollInterval time.Duration
	SchedulerMaxAttempts  int

	// OutboxPublishInterval is the outbox drain cadence.
	OutboxPublishInterval time.Duration
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:            envString("SERVICE_NAME", "commerce-admin"),
		Environment:            envString("ENVIRONMENT", "dev"),
		ListenAddr:             envString("LISTEN_ADDR", ":8080"),
		DatabaseDSN:            envString("DATABASE_DSN", "file:commerce.db"),
		AuthSecret:             os.Getenv("AUTH_SECRET"),
		AuthBaseURL:            envString("AUTH_BASE_URL", "http://localhost:8080"),
		SessionTTL:             envDuration("SESSION_TTL", 12*time.Hour),
		AdminPrincipal:         envString("ADMIN_PRINCIPAL", "admin"),
		AdminPasswordHash:      os.Getenv("ADMIN_PASSWORD_HASH"),
		TrustedOrigins:         envList("AUTH_TRUSTED_ORIGINS"),
		ClientIPHeader:         envString("AUTH_IP_HEADER", "X-Forwarded-For"),
		NATSURL:                envString("NATS_URL", "nats://localhost:4222"),
		NATSEmbedded:           envBool("NATS_EMBEDDED", false),
		NATSStoreDir:           envString("NATS_STORE_DIR", "nats-data"),
		ImageBucketURL:         envString("IMAGE_BUCKET_URL", "mem://"),
		CDNBaseURL:             envString("CDN_BASE_URL", "http://localhost:8080/assets"),
		ProjectionPollInterval: envDuration("PROJECTION_POLL_INTERVAL", 200*time.Millisecond),
		SchedulerPollInterval:  envDuration("SCHEDULER_POLL_INTERVAL", 10*time.Second),
		SchedulerMaxAttempts:   envInt("SCHEDULER_MAX_ATTEMPTS", 5),
		OutboxPublishInterval:  envDuration("OUTBOX_PUBLISH_INTERVAL", time.Second),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AllowedOrigins is the origin allowlist for the HTTP ingress: the
// configured trusted origins plus the service's own base URL.
func (c *Config) AllowedOrigins() []string {
	out := make([]string, 0, len(c.TrustedOrigins)+1)
	out = append(out, c.TrustedOrigins...)
	if c.AuthBaseURL != "" {
		out = append(out, c.AuthBaseURL)
	}
	return out
}

// Validate checks the fields that have no safe default.
func (c *Config) Validate() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 bytes")
	}
	if c.AdminPasswordHash == "" {
		return fmt.Errorf("ADMIN_PASSWORD_HASH is required")
	}
	if c.SchedulerMaxAttempts < 1 {
		return fmt.Errorf("SCHEDULER_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
