// Package config loads towerctl settings from the environment and an optional
// .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/aussiebroadwan/tower/pkg/httpx"
	"github.com/aussiebroadwan/tower/pkg/towersdk"
)

// DefaultEnvFile is read from the working directory when present.
const DefaultEnvFile = ".env"

// Config holds towerctl settings. Keys are the environment variable names.
type Config struct {
	Host       string `mapstructure:"TOWER_HOST"`        // Controller URL, e.g. https://tower.example.com
	Username   string `mapstructure:"TOWER_USERNAME"`    // Login user
	Password   string `mapstructure:"TOWER_PASSWORD"`    // Login password, prompted for when empty
	APIVersion string `mapstructure:"TOWER_API_VERSION"` // API version segment (default: v2)
	Insecure   bool   `mapstructure:"TOWER_INSECURE"`    // Skip TLS verification (default: false)

	Timeout       string `mapstructure:"TOWER_TIMEOUT"`        // Per-request timeout (default: 30s)
	TokenLifetime string `mapstructure:"TOWER_TOKEN_LIFETIME"` // Lifetime assumed for tokens without expiry (default: 30m)

	RateLimitRequests int    `mapstructure:"TOWER_RATE_LIMIT_REQUESTS"` // Requests per window, 0 disables (default: 600)
	RateLimitWindow   string `mapstructure:"TOWER_RATE_LIMIT_WINDOW"`   // Rate limit window (default: 1m)
	RateLimitBurst    int    `mapstructure:"TOWER_RATE_LIMIT_BURST"`    // Requests allowed at once (default: 20)

	Env       string `mapstructure:"ENV"`        // Environment (dev, prod) (default: prod)
	LogLevel  string `mapstructure:"LOG_LEVEL"`  // Log level (debug, info, warn, error) (default: warn)
	LogFormat string `mapstructure:"LOG_FORMAT"` // Log format (json, text) (default: text)
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	return LoadFile(DefaultEnvFile)
}

// LoadFile is Load with an explicit env file. A missing file is ignored.
func LoadFile(envFile string) (*Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // ignore missing file
	}

	v.AutomaticEnv()

	v.SetDefault("TOWER_HOST", "")
	v.SetDefault("TOWER_USERNAME", "")
	v.SetDefault("TOWER_PASSWORD", "")
	v.SetDefault("TOWER_API_VERSION", towersdk.DefaultAPIVersion)
	v.SetDefault("TOWER_INSECURE", false)
	v.SetDefault("TOWER_TIMEOUT", "30s")
	v.SetDefault("TOWER_TOKEN_LIFETIME", towersdk.DefaultTokenLifetime.String())
	v.SetDefault("TOWER_RATE_LIMIT_REQUESTS", httpx.DefaultRateLimit.RequestsPerWindow)
	v.SetDefault("TOWER_RATE_LIMIT_WINDOW", httpx.DefaultRateLimit.Window.String())
	v.SetDefault("TOWER_RATE_LIMIT_BURST", httpx.DefaultRateLimit.Burst)
	v.SetDefault("ENV", "prod")
	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("LOG_FORMAT", "text")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	for key, value := range map[string]string{
		"TOWER_TIMEOUT":           c.Timeout,
		"TOWER_TOKEN_LIFETIME":    c.TokenLifetime,
		"TOWER_RATE_LIMIT_WINDOW": c.RateLimitWindow,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", key)
		}
	}

	if c.RateLimitRequests < 0 || c.RateLimitBurst < 0 {
		return errors.New("config: TOWER_RATE_LIMIT_REQUESTS and TOWER_RATE_LIMIT_BURST must not be negative")
	}

	return nil
}

// RequestTimeout parses Timeout. Returns 30s if unset or invalid.
func (c *Config) RequestTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// DefaultTokenLifetime parses TokenLifetime. Returns
// towersdk.DefaultTokenLifetime if unset or invalid.
func (c *Config) DefaultTokenLifetime() time.Duration {
	return parseDuration(c.TokenLifetime, towersdk.DefaultTokenLifetime)
}

// RateLimit returns the client-side rate limit. A zero request count or burst
// disables it.
func (c *Config) RateLimit() httpx.RateLimitConfig {
	return httpx.RateLimitConfig{
		RequestsPerWindow: c.RateLimitRequests,
		Window:            parseDuration(c.RateLimitWindow, httpx.DefaultRateLimit.Window),
		Burst:             c.RateLimitBurst,
	}
}

// Credentials returns the login credentials from the config.
func (c *Config) Credentials() towersdk.Credentials {
	return towersdk.Credentials{Username: c.Username, Password: c.Password}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
