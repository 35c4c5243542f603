package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Engine.QuoteFreshness != 90*time.Second {
		t.Fatalf("quote freshness = %v, want 90s", cfg.Engine.QuoteFreshness)
	}
	if cfg.Engine.RetryCap != 5 {
		t.Fatalf("retry cap = %d, want 5", cfg.Engine.RetryCap)
	}
	if cfg.Engine.Retention != 30*24*time.Hour {
		t.Fatalf("retention = %v, want 720h", cfg.Engine.Retention)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Database.Path != "papertrade.db" {
		t.Fatalf("database path = %q, want default", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9090"
engine:
  quote_freshness: 30s
  retry_cap: 2
  batch_size: 10
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Engine.QuoteFreshness != 30*time.Second {
		t.Fatalf("quote freshness = %v, want 30s", cfg.Engine.QuoteFreshness)
	}
	if cfg.Engine.RetryCap != 2 {
		t.Fatalf("retry cap = %d, want 2", cfg.Engine.RetryCap)
	}
	// Values the file omits keep their defaults.
	if cfg.Engine.ClaimTimeout != 2*time.Minute {
		t.Fatalf("claim timeout = %v, want default 2m", cfg.Engine.ClaimTimeout)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed config accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("port = %q, want env override 7070", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Fatalf("jwt secret = %q, want env override", cfg.Auth.JWTSecret)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadTuning(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero quote freshness", func(c *Config) { c.Engine.QuoteFreshness = 0 }},
		{"zero retry cap", func(c *Config) { c.Engine.RetryCap = 0 }},
		{"negative batch size", func(c *Config) { c.Engine.BatchSize = -1 }},
		{"zero claim timeout", func(c *Config) { c.Engine.ClaimTimeout = 0 }},
		{"zero retention", func(c *Config) { c.Engine.Retention = 0 }},
		{"empty jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}
