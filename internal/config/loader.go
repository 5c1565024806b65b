package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "canopy.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CANOPY_PORT")
	setString(&cfg.Server.CORSOrigin, "CANOPY_CORS_ORIGIN")
	setInt(&cfg.Server.RateLimitRPS, "CANOPY_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "CANOPY_RATE_LIMIT_BURST")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Blob.Driver, "CANOPY_BLOB_DRIVER")
	setString(&cfg.Blob.Bucket, "CANOPY_BLOB_BUCKET")
	setString(&cfg.Logging.Level, "CANOPY_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CANOPY_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CANOPY_LOG_ASYNC")
	setInt64(&cfg.Cache.MaxSizeMB, "CANOPY_CACHE_SIZE_MB")
	setInt64(&cfg.Cache.NumCounters, "CANOPY_CACHE_COUNTERS")
	setDuration(&cfg.Cache.TypeTTL, "CANOPY_CACHE_TYPE_TTL")
	setString(&cfg.Auth.JWTSecret, "CANOPY_JWT_SECRET")
	setDuration(&cfg.Auth.AccessTokenTTL, "CANOPY_ACCESS_TOKEN_TTL")
	setDuration(&cfg.Auth.MagicLinkTTL, "CANOPY_MAGIC_LINK_TTL")
	setInt(&cfg.Auth.BcryptCost, "CANOPY_BCRYPT_COST")
	setString(&cfg.Auth.DefaultAdminEmail, "CANOPY_ADMIN_EMAIL")
	setDuration(&cfg.Auth.LinkCleanupInterval, "CANOPY_LINK_CLEANUP_INTERVAL")
	setString(&cfg.Auth.VerifyURL, "CANOPY_VERIFY_URL")
	setString(&cfg.Email.SMTPHost, "CANOPY_SMTP_HOST")
	setInt(&cfg.Email.SMTPPort, "CANOPY_SMTP_PORT")
	setString(&cfg.Email.From, "CANOPY_SMTP_FROM")
	setString(&cfg.Email.Password, "CANOPY_SMTP_PASSWORD")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Otel.Service, "OTEL_SERVICE_NAME")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Blob.Driver {
	case "nats", "memory":
	default:
		return fmt.Errorf("blob.driver must be nats or memory, got %q", cfg.Blob.Driver)
	}
	if cfg.Blob.Driver == "nats" && cfg.NATS.URL == "" {
		return errors.New("nats.url is required for the nats blob driver")
	}
	if cfg.Blob.Bucket == "" {
		return errors.New("blob.bucket is required")
	}
	if cfg.Auth.BcryptCost < 10 || cfg.Auth.BcryptCost > 31 {
		return errors.New("auth.bcrypt_cost must be between 10 and 31")
	}
	if cfg.Auth.MagicLinkTTL <= 0 {
		return errors.New("auth.magic_link_ttl must be positive")
	}
	seen := make(map[string]bool, len(cfg.Membership.Keys))
	for _, k := range cfg.Membership.Keys {
		if k.ID == "" {
			return errors.New("membership.keys entries need an id")
		}
		if seen[k.ID] {
			return fmt.Errorf("membership key %q configured twice", k.ID)
		}
		seen[k.ID] = true
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
