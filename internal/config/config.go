// Package config loads service configuration from defaults, an optional
// config.yaml and SMECACHE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SMECACHE_PORT.
const EnvPrefix = "SMECACHE"

type Config struct {
	Port                  int     `mapstructure:"port"`
	LogLevel              string  `mapstructure:"log_level"`
	LogPretty             bool    `mapstructure:"log_pretty"`
	CacheMaxSize          int     `mapstructure:"cache_max_size"`           // Capacity of each engine
	CacheSweepIntervalSec int     `mapstructure:"cache_sweep_interval_sec"` // Expiry sweep period; 0 = disabled
	HTTPCacheTTLSec       int     `mapstructure:"http_cache_ttl_sec"`       // Default response TTL
	RecommendationTTLSec  int     `mapstructure:"recommendation_ttl_sec"`   // Memoized AI recommendations
	ReferenceTTLSec       int     `mapstructure:"reference_ttl_sec"`        // Plan catalogue responses
	RedisURL              string  `mapstructure:"redis_url"`                // Shared response tier; empty = local only
	RateLimitPerSec       float64 `mapstructure:"rate_limit_per_sec"`       // Token bucket rate per client
	RateLimitBurst        int     `mapstructure:"rate_limit_burst"`         // Token bucket burst per client
	AIEndpoint            string  `mapstructure:"ai_endpoint"`              // Recommendation model; empty = built-in rules
	AITimeoutSec          int     `mapstructure:"ai_timeout_sec"`           // Per-attempt model call timeout
	ShutdownTimeoutSec    int     `mapstructure:"shutdown_timeout_sec"`     // Graceful shutdown wait
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("cache_max_size", 1000)
	v.SetDefault("cache_sweep_interval_sec", 60)
	v.SetDefault("http_cache_ttl_sec", 60)
	v.SetDefault("recommendation_ttl_sec", 3600)
	v.SetDefault("reference_ttl_sec", 86400)
	v.SetDefault("redis_url", "")
	v.SetDefault("rate_limit_per_sec", 10)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("ai_endpoint", "")
	v.SetDefault("ai_timeout_sec", 30)
	v.SetDefault("shutdown_timeout_sec", 15)
}

// Load reads the configuration. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/smecache/")
	v.AddConfigPath("$HOME/.smecache")
	v.AddConfigPath(".")

	return load(v)
}

// LoadFile reads the configuration from an explicit YAML file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.CacheMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("cache_max_size must be positive, got %d", c.CacheMaxSize))
	}
	for name, val := range map[string]int{
		"cache_sweep_interval_sec": c.CacheSweepIntervalSec,
		"http_cache_ttl_sec":       c.HTTPCacheTTLSec,
		"recommendation_ttl_sec":   c.RecommendationTTLSec,
		"reference_ttl_sec":        c.ReferenceTTLSec,
		"ai_timeout_sec":           c.AITimeoutSec,
		"shutdown_timeout_sec":     c.ShutdownTimeoutSec,
	} {
		if val < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", name, val))
		}
	}
	if c.RateLimitPerSec < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %v/s burst %d", c.RateLimitPerSec, c.RateLimitBurst))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SweepInterval returns the engine sweep period; negative disables sweeping.
func (c *Config) SweepInterval() time.Duration {
	if c.CacheSweepIntervalSec == 0 {
		return -1
	}
	return seconds(c.CacheSweepIntervalSec)
}

func (c *Config) HTTPCacheTTL() time.Duration      { return seconds(c.HTTPCacheTTLSec) }
func (c *Config) RecommendationTTL() time.Duration { return seconds(c.RecommendationTTLSec) }
func (c *Config) ReferenceTTL() time.Duration      { return seconds(c.ReferenceTTLSec) }
func (c *Config) AITimeout() time.Duration         { return seconds(c.AITimeoutSec) }
func (c *Config) ShutdownTimeout() time.Duration   { return seconds(c.ShutdownTimeoutSec) }

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
