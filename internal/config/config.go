package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration. Values come from an optional YAML
// file named by CONFIG_FILE, then from environment variables, which win.
type Config struct {
	Port          string          `yaml:"port"`
	DatabaseURL   string          `yaml:"database_url"`
	RedisURL      string          `yaml:"redis_url"`
	BearerToken   string          `yaml:"bearer_token"`
	MigrationsDir string          `yaml:"migrations_dir"`
	Catalog       CatalogConfig   `yaml:"catalog"`
	Cache         CacheConfig     `yaml:"cache"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

type CatalogConfig struct {
	URLs     []string      `yaml:"urls"`
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
	Timeout  time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	SearchPerSecond int `yaml:"search_per_second"`
	GlobalPerMinute int `yaml:"global_per_minute"`
}

// Default returns the configuration used for anything left unset.
func Default() *Config {
	return &Config{
		Port:          "8080",
		MigrationsDir: "migrations",
		Catalog: CatalogConfig{
			Attempts: 3,
			Delay:    2 * time.Second,
			Timeout:  5 * time.Second,
		},
		Cache: CacheConfig{TTL: time.Minute},
		RateLimit: RateLimitConfig{
			SearchPerSecond: 2,
			GlobalPerMinute: 60,
		},
	}
}

// Load builds the configuration from getenv (usually os.Getenv) and validates it.
func Load(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path := getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString("PORT", &c.Port)
	setString("DATABASE_URL", &c.DatabaseURL)
	setString("REDIS_URL", &c.RedisURL)
	setString("BEARER_TOKEN", &c.BearerToken)
	setString("MIGRATIONS_DIR", &c.MigrationsDir)

	if v := getenv("CATALOG_URLS"); v != "" {
		c.Catalog.URLs = splitList(v)
	}

	var errs []error
	setInt := func(key string, dst *int) {
		v := getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	setDuration := func(key string, dst *time.Duration) {
		v := getenv(key)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	setInt("FETCH_ATTEMPTS", &c.Catalog.Attempts)
	setDuration("FETCH_DELAY", &c.Catalog.Delay)
	setDuration("FETCH_TIMEOUT", &c.Catalog.Timeout)
	setDuration("CACHE_TTL", &c.Cache.TTL)
	setInt("SEARCH_RATE_LIMIT", &c.RateLimit.SearchPerSecond)
	setInt("GLOBAL_RATE_LIMIT", &c.RateLimit.GlobalPerMinute)

	return errors.Join(errs...)
}

// splitList splits a comma separated value, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every missing or out of range setting.
func (c *Config) Validate() error {
	var errs []error
	required := []struct{ name, value string }{
		{"DATABASE_URL", c.DatabaseURL},
		{"REDIS_URL", c.RedisURL},
		{"BEARER_TOKEN", c.BearerToken},
		{"PORT", c.Port},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}

	if len(c.Catalog.URLs) == 0 {
		errs = append(errs, errors.New("CATALOG_URLS needs at least one feed URL"))
	}
	if c.Catalog.Attempts < 1 {
		errs = append(errs, fmt.Errorf("FETCH_ATTEMPTS must be at least 1, got %d", c.Catalog.Attempts))
	}
	if c.Catalog.Delay < 0 {
		errs = append(errs, fmt.Errorf("FETCH_DELAY must not be negative, got %s", c.Catalog.Delay))
	}
	if c.Catalog.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.Catalog.Timeout))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL))
	}
	if c.RateLimit.SearchPerSecond < 1 {
		errs = append(errs, fmt.Errorf("SEARCH_RATE_LIMIT must be at least 1, got %d", c.RateLimit.SearchPerSecond))
	}
	if c.RateLimit.GlobalPerMinute < 1 {
		errs = append(errs, fmt.Errorf("GLOBAL_RATE_LIMIT must be at least 1, got %d", c.RateLimit.GlobalPerMinute))
	}

	return errors.Join(errs...)
}
