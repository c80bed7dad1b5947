// Package config loads service configuration from an optional yaml file and
// the environment. Environment variables override file values; a .env file is
// honored when present.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all settings the service consumes at startup.
type Config struct {
	// HTTPAddr is the listen address of the HTTP API.
	HTTPAddr string `yaml:"http_addr" env:"CRYPTO_HTTP_ADDR" env-default:":8080"`

	// DefaultExchange answers queries that name no exchange.
	DefaultExchange string `yaml:"default_exchange" env:"CRYPTO_DEFAULT_EXCHANGE" env-default:"binance"`

	// CacheTTLSeconds is the freshness window for cached market data.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" env:"CRYPTO_CACHE_TTL_SECONDS" env-default:"10"`

	// CacheSweepSeconds is the janitor interval; zero disables the janitor.
	CacheSweepSeconds int `yaml:"cache_sweep_seconds" env:"CRYPTO_CACHE_SWEEP_SECONDS" env-default:"60"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level" env:"CRYPTO_LOG_LEVEL" env-default:"info"`

	// Exchanges overrides adapter base URLs, mainly for tests and proxies.
	Exchanges ExchangeURLs `yaml:"exchanges"`
}

// ExchangeURLs holds per-exchange base URL overrides. Empty values select the
// adapter's built-in default endpoint.
type ExchangeURLs struct {
	BinanceURL  string `yaml:"binance_url" env:"CRYPTO_BINANCE_URL"`
	CoinbaseURL string `yaml:"coinbase_url" env:"CRYPTO_COINBASE_URL"`
	OkxURL      string `yaml:"okx_url" env:"CRYPTO_OKX_URL"`
}

// CacheTTL returns the cache freshness window as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// CacheSweep returns the janitor interval; zero means disabled.
func (c *Config) CacheSweep() time.Duration {
	return time.Duration(c.CacheSweepSeconds) * time.Second
}

// Load reads configuration from CRYPTO_CONFIG_PATH if set, then applies
// environment overrides. A missing config path falls back to env-only loading
// with defaults.
func Load() (*Config, error) {
	// Best effort: absence of a .env file is not an error.
	_ = godotenv.Load()

	var cfg Config

	if path := os.Getenv("CRYPTO_CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DefaultExchange == "" {
		return fmt.Errorf("default exchange cannot be empty")
	}
	if c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %d", c.CacheTTLSeconds)
	}
	if c.CacheSweepSeconds < 0 {
		return fmt.Errorf("cache sweep interval must not be negative, got %d", c.CacheSweepSeconds)
	}
	return nil
}
