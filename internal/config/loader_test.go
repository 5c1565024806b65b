package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port default: %s", cfg.Server.Port)
	}
	if cfg.Blob.Driver != "nats" || cfg.Blob.Bucket != "canopy-content" {
		t.Errorf("blob defaults: %+v", cfg.Blob)
	}
	if cfg.Auth.MagicLinkTTL != 15*time.Minute {
		t.Errorf("magic link ttl default: %v", cfg.Auth.MagicLinkTTL)
	}
	if len(cfg.Membership.Keys) != 2 {
		t.Errorf("membership key defaults: %+v", cfg.Membership.Keys)
	}
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canopy.yaml")
	yaml := `
server:
  port: "9090"
blob:
  driver: memory
membership:
  keys:
    - id: public
      name: Public
      order: 0
    - id: gold
      name: Gold
      order: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port: %s", cfg.Server.Port)
	}
	if cfg.Blob.Driver != "memory" {
		t.Errorf("driver: %s", cfg.Blob.Driver)
	}
	if len(cfg.Membership.Keys) != 2 || cfg.Membership.Keys[1].ID != "gold" {
		t.Errorf("keys: %+v", cfg.Membership.Keys)
	}
	// untouched sections keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url: %s", cfg.NATS.URL)
	}
}

func TestLoadFromEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canopy.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CANOPY_PORT", "7070")
	t.Setenv("CANOPY_MAGIC_LINK_TTL", "30m")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("env should win over yaml, got %s", cfg.Server.Port)
	}
	if cfg.Auth.MagicLinkTTL != 30*time.Minute {
		t.Errorf("ttl: %v", cfg.Auth.MagicLinkTTL)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown blob driver", func(c *Config) { c.Blob.Driver = "s3" }},
		{"empty bucket", func(c *Config) { c.Blob.Bucket = "" }},
		{"weak bcrypt cost", func(c *Config) { c.Auth.BcryptCost = 4 }},
		{"duplicate membership key", func(c *Config) {
			c.Membership.Keys = append(c.Membership.Keys, c.Membership.Keys[0])
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}
