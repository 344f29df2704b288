package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(EnvPrefix+k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, map[string]string{"BACKEND_ANON_KEY": "anon-key"})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8787, cfg.HTTPPort)
	assert.Equal(t, "http://localhost:54321", cfg.BackendURL)
	assert.Equal(t, StorageMemory, cfg.SessionStorage)
	assert.Equal(t, ProfileStoreREST, cfg.ProfileStore)
	assert.Equal(t, 3, cfg.ProfileFetchMaxRetries)
	assert.Equal(t, time.Second, cfg.ProfileFetchBaseBackoff)
	assert.Equal(t, 8*time.Second, cfg.ProfileFetchMaxBackoff)
	assert.Equal(t, time.Minute, cfg.TokenRefreshMargin)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.True(t, cfg.CircuitBreaker)
}

func TestLoad_Overrides(t *testing.T) {
	setEnvs(t, map[string]string{
		"BACKEND_ANON_KEY": "anon-key",
		"SESSION_STORAGE":  "redis",
		"REDIS_ADDR":       "redis:6379",
		"KAFKA_BROKERS":    "k1:9092,k2:9092",
		"BACKEND_TIMEOUT":  "3s",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageRedis, cfg.SessionStorage)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.BackendTimeout)
}

func TestLoad_MissingAnonKey(t *testing.T) {
	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_ANON_KEY")
}

func TestLoad_ParseError(t *testing.T) {
	setEnvs(t, map[string]string{"BACKEND_ANON_KEY": "k", "HTTP_PORT": "eighty"})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load agent config")
}

func validConfig() Config {
	return Config{
		Environment:             "development",
		HTTPPort:                8787,
		BackendURL:              "http://localhost:54321",
		BackendAnonKey:          "anon",
		SessionStorage:          StorageMemory,
		ProfileStore:            ProfileStoreREST,
		ProfileFetchMaxRetries:  3,
		ProfileFetchBaseBackoff: time.Second,
		ProfileFetchMaxBackoff:  8 * time.Second,
		TraceSampleRate:         1,
		SignInRatePerMinute:     10,
		SignInBurst:             5,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"port zero", func(c *Config) { c.HTTPPort = 0 }, "invalid HTTP port"},
		{"port too high", func(c *Config) { c.HTTPPort = 70000 }, "invalid HTTP port"},
		{"relative backend url", func(c *Config) { c.BackendURL = "/rest" }, "invalid backend URL"},
		{"plain http in production", func(c *Config) { c.Environment = "production" }, "must use https"},
		{"unknown storage", func(c *Config) { c.SessionStorage = "sqlite" }, "invalid session storage"},
		{"redis without addr", func(c *Config) { c.SessionStorage = StorageRedis }, "REDIS_ADDR"},
		{"unknown profile store", func(c *Config) { c.ProfileStore = "mongo" }, "invalid profile store"},
		{"postgres without url", func(c *Config) { c.ProfileStore = ProfileStorePostgres }, "POSTGRES_URL"},
		{"negative retries", func(c *Config) { c.ProfileFetchMaxRetries = -1 }, "max retries"},
		{"max below base", func(c *Config) { c.ProfileFetchMaxBackoff = time.Millisecond }, "invalid profile fetch backoff"},
		{"sample rate", func(c *Config) { c.TraceSampleRate = 2 }, "trace sample rate"},
		{"rate limit", func(c *Config) { c.SignInBurst = 0 }, "sign-in rate limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
