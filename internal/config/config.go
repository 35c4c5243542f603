package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application settings. Load applies file values over the
// defaults and then environment overrides over both, so a bare deployment
// runs with no config file at all.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"auth"`

	Engine struct {
		// Maximum quote age still considered valid for pricing a fill.
		QuoteFreshness time.Duration `yaml:"quote_freshness"`
		// Transient-failure retries before an order is forced to FAILED.
		RetryCap int `yaml:"retry_cap"`
		// Orders loaded per page of the pending scan.
		BatchSize int `yaml:"batch_size"`
		// A PROCESSING claim older than this is treated as abandoned.
		ClaimTimeout time.Duration `yaml:"claim_timeout"`
		// Wall-clock budget for a single processing pass.
		BatchBudget time.Duration `yaml:"batch_budget"`
		// Terminal orders older than this are swept.
		Retention time.Duration `yaml:"retention"`
		// Background cadences.
		ProcessInterval time.Duration `yaml:"process_interval"`
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
	} `yaml:"engine"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"` // empty disables the rotating file sink
	} `yaml:"logging"`
}

// Default returns the configuration used when no file or overrides are given.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Database.Path = "papertrade.db"
	cfg.Auth.JWTSecret = "papertrade-secret-key"
	cfg.Engine.QuoteFreshness = 90 * time.Second
	cfg.Engine.RetryCap = 5
	cfg.Engine.BatchSize = 100
	cfg.Engine.ClaimTimeout = 2 * time.Minute
	cfg.Engine.BatchBudget = 25 * time.Second
	cfg.Engine.Retention = 30 * 24 * time.Hour
	cfg.Engine.ProcessInterval = time.Minute
	cfg.Engine.CleanupInterval = time.Hour
	cfg.Logging.Level = "info"
	return cfg
}

// Load reads the YAML config at path, if present, and applies environment
// overrides. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the tuning parameters the engine depends on.
func (c *Config) Validate() error {
	if c.Engine.QuoteFreshness <= 0 {
		return fmt.Errorf("quote freshness window must be positive")
	}
	if c.Engine.RetryCap <= 0 {
		return fmt.Errorf("retry cap must be positive")
	}
	if c.Engine.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Engine.ClaimTimeout <= 0 {
		return fmt.Errorf("claim timeout must be positive")
	}
	if c.Engine.Retention <= 0 {
		return fmt.Errorf("retention window must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	return nil
}

// overrideWithEnv applies environment variables over file values. Secrets
// are expected to arrive this way in production.
func overrideWithEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if key := os.Getenv("API_KEY"); key != "" {
		cfg.Auth.APIKey = key
	}
	if secret := os.Getenv("API_SECRET"); secret != "" {
		cfg.Auth.APISecret = secret
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		cfg.Logging.File = file
	}
}
