package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/Atulx21/SevaConnect/pkg/config"
)

// EnvPrefix is prepended to every variable below.
const EnvPrefix = "KAAM_"

// Session storage kinds.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Profile store kinds.
const (
	ProfileStoreREST     = "rest"
	ProfileStorePostgres = "postgres"
)

// Config holds all configuration for the session agent.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Agent HTTP API
	HTTPPort           int           `env:"HTTP_PORT" envDefault:"8787"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:8081" envSeparator:","`

	// Managed backend
	BackendURL     string        `env:"BACKEND_URL" envDefault:"http://localhost:54321"`
	BackendAnonKey string        `env:"BACKEND_ANON_KEY"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`
	CircuitBreaker bool          `env:"BACKEND_CIRCUIT_BREAKER" envDefault:"true"`

	// Session persistence
	SessionStorage string `env:"SESSION_STORAGE" envDefault:"memory"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"kaamconnect:auth:"`

	// Profile store
	ProfileStore  string `env:"PROFILE_STORE" envDefault:"rest"`
	PostgresURL   string `env:"POSTGRES_URL"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Profile fetch retry policy
	ProfileFetchMaxRetries  int           `env:"PROFILE_FETCH_MAX_RETRIES" envDefault:"3"`
	ProfileFetchBaseBackoff time.Duration `env:"PROFILE_FETCH_BASE_BACKOFF" envDefault:"1s"`
	ProfileFetchMaxBackoff  time.Duration `env:"PROFILE_FETCH_MAX_BACKOFF" envDefault:"8s"`

	// Token auto-refresh
	AutoRefreshToken   bool          `env:"AUTO_REFRESH_TOKEN" envDefault:"true"`
	TokenRefreshMargin time.Duration `env:"TOKEN_REFRESH_MARGIN" envDefault:"60s"`

	// Kafka session audit; empty disables publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// OpenTelemetry
	TracingEnabled  bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint    string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TraceSampleRate float64 `env:"TRACE_SAMPLE_RATE" envDefault:"1.0"`

	// Sign-in / sign-up throttling on the agent API
	SignInRatePerMinute int `env:"SIGN_IN_RATE_PER_MINUTE" envDefault:"10"`
	SignInBurst         int `env:"SIGN_IN_BURST" envDefault:"5"`
}

// Load reads KAAM_-prefixed environment variables and validates them.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithPrefix(cfg, EnvPrefix); err != nil {
		return nil, fmt.Errorf("load agent config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend URL %q: must be an absolute http(s) URL", c.BackendURL)
	}
	if c.BackendAnonKey == "" {
		return fmt.Errorf("%sBACKEND_ANON_KEY must be set", EnvPrefix)
	}
	if c.Environment != "development" && u.Scheme != "https" {
		return fmt.Errorf("backend URL must use https in %q mode", c.Environment)
	}

	switch c.SessionStorage {
	case StorageMemory:
	case StorageRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%sREDIS_ADDR is required for redis session storage", EnvPrefix)
		}
	default:
		return fmt.Errorf("invalid session storage %q: want %q or %q", c.SessionStorage, StorageMemory, StorageRedis)
	}

	switch c.ProfileStore {
	case ProfileStoreREST:
	case ProfileStorePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("%sPOSTGRES_URL is required for the postgres profile store", EnvPrefix)
		}
	default:
		return fmt.Errorf("invalid profile store %q: want %q or %q", c.ProfileStore, ProfileStoreREST, ProfileStorePostgres)
	}

	if c.ProfileFetchMaxRetries < 0 {
		return fmt.Errorf("profile fetch max retries must be >= 0, got %d", c.ProfileFetchMaxRetries)
	}
	if c.ProfileFetchBaseBackoff <= 0 || c.ProfileFetchMaxBackoff < c.ProfileFetchBaseBackoff {
		return fmt.Errorf("invalid profile fetch backoff: base %s, max %s", c.ProfileFetchBaseBackoff, c.ProfileFetchMaxBackoff)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("trace sample rate must be within [0, 1], got %v", c.TraceSampleRate)
	}
	if c.SignInRatePerMinute < 1 || c.SignInBurst < 1 {
		return fmt.Errorf("sign-in rate limit must be positive, got %d/min burst %d", c.SignInRatePerMinute, c.SignInBurst)
	}
	return nil
}
