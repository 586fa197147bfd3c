package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// clearEnv blanks every variable Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GQLSTORE_ENDPOINT", "GQLSTORE_WS_ENDPOINT", "GQLSTORE_TOKEN", "GQLSTORE_TIMEOUT",
		"GQLSTORE_RATE_LIMIT", "GQLSTORE_BURST", "GQLSTORE_MAX_CONCURRENT", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `# GraphQL endpoint
endpoint:
  url: "https://example.com/graphql"
  websocket_url: "wss://example.com/graphql"
  token: "test-token"
  timeout: "5s"

rate_limit:
  rate: "250ms"
  burst: 4

client:
  name: "books-app"
  version: "1.2.3"
  fetch_policy: "network-only"

logging:
  level: "debug"
  format: "json"

watch:
  take: 3
  wait: "2s"
  poll_interval: "500ms"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/graphql", cfg.Endpoint.URL)
	assert.Equal(t, "wss://example.com/graphql", cfg.Endpoint.WebSocketURL)
	assert.Equal(t, "test-token", cfg.Endpoint.Token)
	assert.Equal(t, 5*time.Second, cfg.Endpoint.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.Rate)
	assert.Equal(t, 4, cfg.RateLimit.Burst)
	assert.Equal(t, 3, cfg.RateLimit.MaxConcurrent, "unset values keep their defaults")
	assert.Equal(t, "books-app", cfg.Client.Name)
	assert.Equal(t, "1.2.3", cfg.Client.Version)
	assert.Equal(t, "network-only", cfg.Client.FetchPolicy)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Watch.Take)
	assert.Equal(t, 2*time.Second, cfg.Watch.Wait)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.PollInterval)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `endpoint:
  url: "https://file.example.com/graphql"
  token: "file-token"
`)
	t.Setenv("GQLSTORE_ENDPOINT", "https://env.example.com/graphql")
	t.Setenv("GQLSTORE_TIMEOUT", "7s")
	t.Setenv("GQLSTORE_BURST", "not-a-number")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com/graphql", cfg.Endpoint.URL)
	assert.Equal(t, "file-token", cfg.Endpoint.Token)
	assert.Equal(t, 7*time.Second, cfg.Endpoint.Timeout)
	assert.Equal(t, 10, cfg.RateLimit.Burst, "invalid env values are ignored")
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	path := writeConfig(t, "endpoint: [not, a, map")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{"valid", func(c *Config) { c.Endpoint.URL = "http://localhost/graphql" }, "", false},
		{"missing endpoint", func(c *Config) {}, "GQLSTORE_ENDPOINT", true},
		{"zero take", func(c *Config) {
			c.Endpoint.URL = "http://localhost/graphql"
			c.Watch.Take = 0
		}, "watch.take", true},
		{"zero wait", func(c *Config) {
			c.Endpoint.URL = "http://localhost/graphql"
			c.Watch.Wait = 0
		}, "watch.wait", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
