package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.CacheMaxSize != 1000 {
		t.Errorf("Expected default cache_max_size 1000, got %d", cfg.CacheMaxSize)
	}
	if cfg.HTTPCacheTTL() != time.Minute {
		t.Errorf("Expected default HTTP TTL 1m, got %v", cfg.HTTPCacheTTL())
	}
	if cfg.RecommendationTTL() != time.Hour {
		t.Errorf("Expected default recommendation TTL 1h, got %v", cfg.RecommendationTTL())
	}
	if cfg.ReferenceTTL() != 24*time.Hour {
		t.Errorf("Expected default reference TTL 24h, got %v", cfg.ReferenceTTL())
	}
	if cfg.SweepInterval() != time.Minute {
		t.Errorf("Expected default sweep interval 1m, got %v", cfg.SweepInterval())
	}
	if cfg.RedisURL != "" || cfg.AIEndpoint != "" {
		t.Error("Expected no Redis and no AI endpoint by default")
	}
	if cfg.RateLimitPerSec != 10 || cfg.RateLimitBurst != 20 {
		t.Errorf("Expected default rate limit 10/s burst 20, got %v/%d", cfg.RateLimitPerSec, cfg.RateLimitBurst)
	}
	if cfg.ShutdownTimeout() != 15*time.Second {
		t.Errorf("Expected default shutdown timeout 15s, got %v", cfg.ShutdownTimeout())
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SMECACHE_PORT", "9000")
	t.Setenv("SMECACHE_LOG_LEVEL", "debug")
	t.Setenv("SMECACHE_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("SMECACHE_RATE_LIMIT_PER_SEC", "2.5")
	t.Setenv("SMECACHE_CACHE_SWEEP_INTERVAL_SEC", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %s", cfg.LogLevel)
	}
	if cfg.RedisURL != "redis://cache:6379/0" {
		t.Errorf("Expected redis url from env, got %q", cfg.RedisURL)
	}
	if cfg.RateLimitPerSec != 2.5 {
		t.Errorf("Expected rate 2.5, got %v", cfg.RateLimitPerSec)
	}
	if cfg.SweepInterval() >= 0 {
		t.Errorf("Expected sweeping disabled, got %v", cfg.SweepInterval())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smecache.yaml")
	yaml := "port: 7070\ncache_max_size: 50\nai_endpoint: http://model.internal/v1/generate\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SMECACHE_CACHE_MAX_SIZE", "75")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Port != 7070 {
		t.Errorf("Expected port from file 7070, got %d", cfg.Port)
	}
	if cfg.CacheMaxSize != 75 {
		t.Errorf("Expected env to override file (75), got %d", cfg.CacheMaxSize)
	}
	if cfg.AIEndpoint != "http://model.internal/v1/generate" {
		t.Errorf("Expected ai endpoint from file, got %q", cfg.AIEndpoint)
	}
	if cfg.HTTPCacheTTLSec != 60 {
		t.Errorf("Expected unset keys to keep defaults, got %d", cfg.HTTPCacheTTLSec)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for explicit missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{Port: 8080, CacheMaxSize: 10, RateLimitPerSec: 1, RateLimitBurst: 1}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "port zero", mutate: func(c *Config) { c.Port = 0 }, wantErr: "port"},
		{name: "port too large", mutate: func(c *Config) { c.Port = 70000 }, wantErr: "port"},
		{name: "empty cache", mutate: func(c *Config) { c.CacheMaxSize = 0 }, wantErr: "cache_max_size"},
		{name: "negative ttl", mutate: func(c *Config) { c.HTTPCacheTTLSec = -1 }, wantErr: "http_cache_ttl_sec"},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimitPerSec = -1 }, wantErr: "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("os.Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("os.Chdir(%q) error = %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("os.Chdir(%q) error = %v", wd, err)
		}
	})
}
