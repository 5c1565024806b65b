// Package config provides hierarchical configuration loading for canopy.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"time"

	"github.com/canopyhq/canopy/internal/domain/membership"
)

// Config holds all runtime configuration for the canopy content service.
type Config struct {
	Server     Server     `yaml:"server"`
	NATS       NATS       `yaml:"nats"`
	Blob       Blob       `yaml:"blob"`
	Logging    Logging    `yaml:"logging"`
	Cache      Cache      `yaml:"cache"`
	Auth       Auth       `yaml:"auth"`
	Email      Email      `yaml:"email"`
	Membership Membership `yaml:"membership"`
	Otel       Otel       `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port           string `yaml:"port"`
	CORSOrigin     string `yaml:"cors_origin"`
	RateLimitRPS   int    `yaml:"rate_limit_rps"`
	RateLimitBurst int    `yaml:"rate_limit_burst"`
}

// NATS holds NATS JetStream configuration. The queue stream and the
// object store bucket share one connection.
type NATS struct {
	URL string `yaml:"url"`
}

// Blob selects and configures the blob store backend. Driver is "nats"
// for the JetStream object store or "memory" for single-process use.
type Blob struct {
	Driver string `yaml:"driver"`
	Bucket string `yaml:"bucket"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Cache holds the in-process cache sizing for entity type definitions and
// membership keys.
type Cache struct {
	MaxSizeMB   int64         `yaml:"max_size_mb"`
	NumCounters int64         `yaml:"num_counters"`
	TypeTTL     time.Duration `yaml:"type_ttl"`
}

// Auth holds token and magic-link configuration.
type Auth struct {
	JWTSecret           string        `yaml:"jwt_secret"`
	AccessTokenTTL      time.Duration `yaml:"access_token_ttl"`
	MagicLinkTTL        time.Duration `yaml:"magic_link_ttl"`
	BcryptCost          int           `yaml:"bcrypt_cost"`
	DefaultAdminEmail   string        `yaml:"default_admin_email"`
	LinkCleanupInterval time.Duration `yaml:"link_cleanup_interval"`
	VerifyURL           string        `yaml:"verify_url"`
}

// Email holds SMTP configuration for magic-link delivery. An empty host
// disables outbound mail.
type Email struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	From     string `yaml:"from"`
	Password string `yaml:"password"`
}

// Membership holds the configured audience key lattice. A public key at
// order 0 is synthesized when the list lacks one.
type Membership struct {
	Keys []membership.Key `yaml:"keys"`
}

// Otel holds OpenTelemetry export configuration. An empty endpoint
// disables tracing.
type Otel struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

// Defaults returns a Config with sensible default values for local
// development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:           "8080",
			CORSOrigin:     "http://localhost:3000",
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		NATS: NATS{
			URL: "nats://localhost:4222",
		},
		Blob: Blob{
			Driver: "nats",
			Bucket: "canopy-content",
		},
		Logging: Logging{
			Level:   "info",
			Service: "canopy",
		},
		Cache: Cache{
			MaxSizeMB:   64,
			NumCounters: 100_000,
			TypeTTL:     5 * time.Minute,
		},
		Auth: Auth{
			AccessTokenTTL:      time.Hour,
			MagicLinkTTL:        15 * time.Minute,
			BcryptCost:          12,
			LinkCleanupInterval: time.Hour,
			VerifyURL:           "http://localhost:3000/login/verify",
		},
		Email: Email{
			SMTPPort: 587,
		},
		Membership: Membership{
			Keys: []membership.Key{
				{ID: "public", Name: "Public", Order: 0},
				{ID: "platform", Name: "Platform", Order: 1},
			},
		},
		Otel: Otel{
			Service: "canopy",
		},
	}
}
