package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file without applying defaults.
func LoadFromFile(path string) (*Config, error) {
	if !filepath.IsAbs(path) {
		abspath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abspath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	log.Debug().
		Str("config_file", path).
		Int("total_bytes", len(data)).
		Msg("Read config file content")

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal YAML config")
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	log.Debug().
		Str("config_file", path).
		Str("endpoint", cfg.Endpoint.URL).
		Bool("has_token", cfg.Endpoint.Token != "").
		Msg("Successfully parsed configuration file")

	return &cfg, nil
}
