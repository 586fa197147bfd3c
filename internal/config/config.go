package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the gqlstore tools
type Config struct {
	// Endpoint describes the GraphQL server
	Endpoint struct {
		URL          string        `yaml:"url"`
		WebSocketURL string        `yaml:"websocket_url"`
		Token        string        `yaml:"token"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"endpoint"`

	// RateLimit throttles outgoing HTTP requests
	RateLimit struct {
		Rate          time.Duration `yaml:"rate"`
		Burst         int           `yaml:"burst"`
		MaxConcurrent int           `yaml:"max_concurrent"`
	} `yaml:"rate_limit"`

	// Client identifies this client to the server
	Client struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		FetchPolicy string `yaml:"fetch_policy"`
	} `yaml:"client"`

	// Logging configuration
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Watch controls how many emissions the CLI collects and for how long
	Watch struct {
		Take         int           `yaml:"take"`
		Wait         time.Duration `yaml:"wait"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"watch"`
}

// DefaultConfig returns a configuration with all defaults applied
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Endpoint.Timeout = 30 * time.Second
	cfg.RateLimit.Rate = 100 * time.Millisecond
	cfg.RateLimit.Burst = 10
	cfg.RateLimit.MaxConcurrent = 3
	cfg.Client.Name = "gqlstore"
	cfg.Client.FetchPolicy = "cache-first"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Watch.Take = 1
	cfg.Watch.Wait = 10 * time.Second
	return cfg
}

// Load builds the configuration from defaults, an optional YAML file and the environment.
// Priority: 1) environment variables, 2) config file, 3) defaults
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		fileCfg, err := LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		mergeConfigs(cfg, fileCfg)
	}

	loadFromEnv(cfg)

	return cfg, nil
}

// mergeConfigs copies every non-zero value of src into dst
func mergeConfigs(dst, src *Config) {
	setString(&dst.Endpoint.URL, src.Endpoint.URL)
	setString(&dst.Endpoint.WebSocketURL, src.Endpoint.WebSocketURL)
	setString(&dst.Endpoint.Token, src.Endpoint.Token)
	setDuration(&dst.Endpoint.Timeout, src.Endpoint.Timeout)

	setDuration(&dst.RateLimit.Rate, src.RateLimit.Rate)
	setInt(&dst.RateLimit.Burst, src.RateLimit.Burst)
	setInt(&dst.RateLimit.MaxConcurrent, src.RateLimit.MaxConcurrent)

	setString(&dst.Client.Name, src.Client.Name)
	setString(&dst.Client.Version, src.Client.Version)
	setString(&dst.Client.FetchPolicy, src.Client.FetchPolicy)

	setString(&dst.Logging.Level, src.Logging.Level)
	setString(&dst.Logging.Format, src.Logging.Format)

	setInt(&dst.Watch.Take, src.Watch.Take)
	setDuration(&dst.Watch.Wait, src.Watch.Wait)
	setDuration(&dst.Watch.PollInterval, src.Watch.PollInterval)
}

func loadFromEnv(cfg *Config) {
	setString(&cfg.Endpoint.URL, getEnv("GQLSTORE_ENDPOINT", ""))
	setString(&cfg.Endpoint.WebSocketURL, getEnv("GQLSTORE_WS_ENDPOINT", ""))
	setString(&cfg.Endpoint.Token, getEnv("GQLSTORE_TOKEN", ""))
	setDuration(&cfg.Endpoint.Timeout, getDurationFromEnv("GQLSTORE_TIMEOUT", 0))

	setDuration(&cfg.RateLimit.Rate, getDurationFromEnv("GQLSTORE_RATE_LIMIT", 0))
	setInt(&cfg.RateLimit.Burst, getIntFromEnv("GQLSTORE_BURST", 0))
	setInt(&cfg.RateLimit.MaxConcurrent, getIntFromEnv("GQLSTORE_MAX_CONCURRENT", 0))

	setString(&cfg.Logging.Level, getEnv("LOG_LEVEL", ""))
	setString(&cfg.Logging.Format, getEnv("LOG_FORMAT", ""))
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	var missing []string

	if c.Endpoint.URL == "" {
		missing = append(missing, "GQLSTORE_ENDPOINT")
	}
	if len(missing) > 0 {
		return &ConfigError{
			Field: strings.Join(missing, ", "),
			Msg:   "required configuration values are missing",
		}
	}

	if c.Watch.Take < 1 {
		return &ConfigError{Field: "watch.take", Msg: fmt.Sprintf("must be positive, got %d", c.Watch.Take)}
	}
	if c.Watch.Wait <= 0 {
		return &ConfigError{Field: "watch.wait", Msg: "must be a positive duration"}
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Msg
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// Helper functions for environment variable parsing
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getIntFromEnv(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getDurationFromEnv(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
