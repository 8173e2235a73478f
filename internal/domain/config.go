package domain

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "KESTREL"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" envconfig:"server"`

	// Tier determines component defaults
	Tier Tier `json:"tier" envconfig:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" envconfig:"repository"`
	Cache      CacheConfig      `json:"cache" envconfig:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" envconfig:"eventbus"`

	// Ledger behaviour
	Ledger    LedgerConfig    `json:"ledger" envconfig:"ledger"`
	RateLimit RateLimitConfig `json:"rateLimit" envconfig:"ratelimit"`
	Worker    WorkerConfig    `json:"worker" envconfig:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" envconfig:"logging"`
	Tracing TracingConfig `json:"tracing" envconfig:"tracing"`
	Metrics MetricsConfig `json:"metrics" envconfig:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" envconfig:"host"`
	Port         int    `json:"port" envconfig:"port"`
	ReadTimeout  int    `json:"readTimeout" envconfig:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" envconfig:"write_timeout"` // seconds
}

// LedgerConfig holds write-path settings.
type LedgerConfig struct {
	// TransactionPolicy is a CEL expression every new transaction must satisfy.
	// Variables: amount (double), payment_type (string), seller_id (string).
	TransactionPolicy string `json:"transactionPolicy" envconfig:"transaction_policy"`

	// IdempotencyTTL is how long a replayable POST response is kept.
	IdempotencyTTL time.Duration `json:"idempotencyTtl" envconfig:"idempotency_ttl"`
}

// RateLimitConfig holds per-client request limits. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerWindow int64         `json:"requestsPerWindow" envconfig:"requests"`
	Window            time.Duration `json:"window" envconfig:"window"`
}

// WorkerConfig holds async analysis worker settings.
type WorkerConfig struct {
	Enabled bool `json:"enabled" envconfig:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" envconfig:"level"`   // debug, info, warn, error
	Format string `json:"format" envconfig:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool    `json:"enabled" envconfig:"enabled"`
	ServiceName  string  `json:"serviceName" envconfig:"service_name"`
	ExporterType string  `json:"exporterType" envconfig:"exporter"` // stdout, none
	SampleRatio  float64 `json:"sampleRatio" envconfig:"sample_ratio"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" envconfig:"enabled"`
	Path    string `json:"path" envconfig:"path"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultTransactionPolicy accepts any positive amount.
const DefaultTransactionPolicy = "amount > 0.0"

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Ledger: LedgerConfig{
			TransactionPolicy: DefaultTransactionPolicy,
			IdempotencyTTL:    24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 0,
			Window:            time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "kestrel",
			ExporterType: "stdout",
			SampleRatio:  1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
		MaxOpenConns: 25,
		MaxIdleConns: 5,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.RateLimit.RequestsPerWindow = 600
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig picks the tier defaults from KESTREL_TIER and then applies
// every KESTREL_* override found in the environment.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if Tier(os.Getenv(EnvPrefix+"_TIER")) == TierPro {
		cfg = ProConfig()
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if os.Getenv(EnvPrefix+"_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the components cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidInput, c.Server.Port)
	}
	switch c.Repository.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("%w: unsupported repository driver %q", ErrInvalidInput, c.Repository.Driver)
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unsupported cache type %q", ErrInvalidInput, c.Cache.Type)
	}
	switch c.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("%w: unsupported event bus type %q", ErrInvalidInput, c.EventBus.Type)
	}
	if c.RateLimit.RequestsPerWindow < 0 {
		return fmt.Errorf("%w: rate limit must be >= 0", ErrInvalidInput)
	}
	if c.RateLimit.RequestsPerWindow > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("%w: rate limit window must be positive", ErrInvalidInput)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("%w: tracing sample ratio must be within [0, 1]", ErrInvalidInput)
	}
	return nil
}
