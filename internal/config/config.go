package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Catalog CatalogConfig `yaml:"catalog"`
	Search  SearchConfig  `yaml:"search"`
	Redis   RedisSettings `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
}

type CatalogConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIToken    string        `yaml:"api_token"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"rate_limit"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	UserAgent   string        `yaml:"user_agent"`
	RemoteStats bool          `yaml:"remote_stats"`
}

type SearchConfig struct {
	PageSize int           `yaml:"page_size"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type RedisSettings struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Defaults() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL:     "http://localhost:5000",
			Timeout:     30 * time.Second,
			RateLimit:   10,
			MaxRetries:  3,
			RetryDelay:  2 * time.Second,
			UserAgent:   "vidcat/1.0",
			RemoteStats: true,
		},
		Search: SearchConfig{
			PageSize: 8,
			CacheTTL: 5 * time.Minute,
		},
		Redis: RedisSettings{
			Port: "6379",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// VIDCAT_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("VIDCAT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
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
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Catalog.BaseURL = GetEnv("VIDCAT_BASE_URL", c.Catalog.BaseURL)
	c.Catalog.APIToken = GetEnv("VIDCAT_API_TOKEN", c.Catalog.APIToken)
	c.Catalog.UserAgent = GetEnv("VIDCAT_USER_AGENT", c.Catalog.UserAgent)
	c.Log.Level = GetEnv("VIDCAT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = GetEnv("VIDCAT_LOG_FORMAT", c.Log.Format)

	var err error
	if c.Catalog.Timeout, err = getEnvDuration("VIDCAT_TIMEOUT", c.Catalog.Timeout); err != nil {
		return err
	}
	if c.Catalog.RetryDelay, err = getEnvDuration("VIDCAT_RETRY_DELAY", c.Catalog.RetryDelay); err != nil {
		return err
	}
	if c.Search.CacheTTL, err = getEnvDuration("VIDCAT_SEARCH_CACHE_TTL", c.Search.CacheTTL); err != nil {
		return err
	}
	if c.Catalog.MaxRetries, err = getEnvInt("VIDCAT_MAX_RETRIES", c.Catalog.MaxRetries); err != nil {
		return err
	}
	if c.Search.PageSize, err = getEnvInt("VIDCAT_PAGE_SIZE", c.Search.PageSize); err != nil {
		return err
	}
	if v := os.Getenv("VIDCAT_RATE_LIMIT"); v != "" {
		if c.Catalog.RateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("invalid VIDCAT_RATE_LIMIT %q: %w", v, err)
		}
	}
	if v := os.Getenv("VIDCAT_REMOTE_STATS"); v != "" {
		if c.Catalog.RemoteStats, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("invalid VIDCAT_REMOTE_STATS %q: %w", v, err)
		}
	}

	c.Redis.Host, c.Redis.Port, c.Redis.Password = RedisConfig(c.Redis)
	return nil
}

func (c *Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("VIDCAT_BASE_URL is required")
	}
	if c.Search.PageSize < 1 {
		return fmt.Errorf("page size must be at least 1, got %d", c.Search.PageSize)
	}
	if c.Catalog.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.Catalog.MaxRetries)
	}
	if c.Catalog.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	return nil
}

// RedisEnabled reports whether a Redis host was configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

// RedisAddr returns the Redis address in host:port format
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// RedisConfig returns host, port, password, falling back to the given values
func RedisConfig(fallback RedisSettings) (string, string, string) {
	host := GetEnv("R_HOST", fallback.Host)
	port := GetEnv("R_PORT", fallback.Port)
	password := GetEnv("R_PASS", fallback.Password)
	return host, port, password
}

// GetEnv retrieves values from environment files based on the key it matches,
// returns a string (value) if not empty
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
