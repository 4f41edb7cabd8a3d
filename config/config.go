package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/alem-hub/proximity-attendance/pkg/timeutil"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage drivers understood by the daemon.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig           `envPrefix:"APP_"`
	Detection     DetectionConfig     `envPrefix:"DETECTION_"`
	Storage       StorageConfig       `envPrefix:"STORAGE_"`
	HTTP          HTTPConfig          `envPrefix:"HTTP_"`
	Events        EventsConfig        `envPrefix:"EVENTS_"`
	Scheduler     SchedulerConfig     `envPrefix:"SCHEDULER_"`
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string      `env:"NAME" envDefault:"proximity-attendance"`
	Environment Environment `env:"ENV" envDefault:"development"`
	Version     string      `env:"VERSION" envDefault:"0.1.0"`

	// Timezone used to compute attendance day keys.
	Timezone string `env:"TIMEZONE" envDefault:"UTC"`
	Location *time.Location `env:"-"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Seeds the demo identity directory when set.
	SeedDemoPeople bool `env:"SEED_DEMO_PEOPLE" envDefault:"true"`
}

// DetectionConfig holds the proximity engine tuning knobs.
type DetectionConfig struct {
	RSSIThreshold int           `env:"RSSI_THRESHOLD" envDefault:"-75"`
	SoftDeadline  time.Duration `env:"SOFT_DEADLINE" envDefault:"15s"`
	HardCap       time.Duration `env:"HARD_CAP" envDefault:"30s"`
}

// StorageConfig selects and configures the durable store.
type StorageConfig struct {
	Driver string `env:"DRIVER" envDefault:"memory"`

	PostgresURL  string        `env:"POSTGRES_URL"`
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" envDefault:"5s"`
	MaxConns     int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10"`

	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"attendance:"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/attendance.db"`

	ConnectAttempts int `env:"CONNECT_ATTEMPTS" envDefault:"5"`

	// Circuit breaker in front of the store.
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"3"`
	BreakerTimeout   time.Duration `env:"BREAKER_TIMEOUT" envDefault:"10s"`
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Addr         string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	// Check-ins may wait out a full scan deadline.
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"45s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`

	MaxBodyBytes       int64    `env:"MAX_BODY_BYTES" envDefault:"65536"`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	AllowedOrigins     []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Bearer tokens issued by the login endpoint.
	AuthSecret string        `env:"AUTH_SECRET" envDefault:"dev-insecure-secret"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
}

// DevAuthSecret is the placeholder secret refused in production.
const DevAuthSecret = "dev-insecure-secret"

// Event bus drivers.
const (
	EventsMemory = "memory"
	EventsRedis  = "redis"
)

// EventsConfig selects where ledger events are fanned out.
type EventsConfig struct {
	Driver   string `env:"DRIVER" envDefault:"memory"`
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Channel  string `env:"CHANNEL" envDefault:"attendance:events"`
	Workers  int    `env:"WORKERS" envDefault:"4"`
}

// SchedulerConfig controls background maintenance.
type SchedulerConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`

	// Active sessions older than MaxSessionAge are ended by the sweep.
	MaxSessionAge time.Duration `env:"MAX_SESSION_AGE" envDefault:"12h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	TracingEnabled  bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint string  `env:"TRACING_ENDPOINT"`
	TracingInsecure bool    `env:"TRACING_INSECURE" envDefault:"true"`
	TracingSample   float64 `env:"TRACING_SAMPLE_RATIO" envDefault:"1"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

// LoadFrom parses configuration from the given variables only.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.App.Location = timeutil.LoadLocation(cfg.App.Timezone)
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Events.Driver = strings.ToLower(strings.TrimSpace(cfg.Events.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Sprintf("APP_ENV %q is not one of development, staging, production", c.App.Environment))
	}

	if c.Detection.SoftDeadline <= 0 {
		errs = append(errs, "DETECTION_SOFT_DEADLINE must be positive")
	}
	if c.Detection.HardCap < c.Detection.SoftDeadline {
		errs = append(errs, "DETECTION_HARD_CAP must not be shorter than DETECTION_SOFT_DEADLINE")
	}
	if c.Detection.RSSIThreshold > 0 || c.Detection.RSSIThreshold < -127 {
		errs = append(errs, "DETECTION_RSSI_THRESHOLD must be between -127 and 0 dBm")
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			errs = append(errs, "STORAGE_POSTGRES_URL is required for the postgres driver")
		}
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, "STORAGE_REDIS_URL is required for the redis driver")
		}
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, "STORAGE_SQLITE_PATH is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER %q is not supported", c.Storage.Driver))
	}

	if c.App.Environment == EnvProduction && c.Storage.Driver == StorageMemory {
		errs = append(errs, "STORAGE_DRIVER memory is not allowed in production")
	}

	if c.HTTP.TokenTTL <= 0 {
		errs = append(errs, "HTTP_TOKEN_TTL must be positive")
	}
	if len(c.HTTP.AuthSecret) < 16 {
		errs = append(errs, "HTTP_AUTH_SECRET must be at least 16 characters")
	}
	if c.App.Environment == EnvProduction && c.HTTP.AuthSecret == DevAuthSecret {
		errs = append(errs, "HTTP_AUTH_SECRET must be set in production")
	}

	switch c.Events.Driver {
	case EventsMemory:
	case EventsRedis:
		if c.Events.RedisURL == "" {
			errs = append(errs, "EVENTS_REDIS_URL is required for the redis event bus")
		}
	default:
		errs = append(errs, fmt.Sprintf("EVENTS_DRIVER %q is not supported", c.Events.Driver))
	}
	if c.Events.Workers <= 0 {
		errs = append(errs, "EVENTS_WORKERS must be positive")
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.MaxSessionAge <= 0 {
			errs = append(errs, "SCHEDULER_MAX_SESSION_AGE must be positive")
		}
		if c.Scheduler.SweepInterval <= 0 {
			errs = append(errs, "SCHEDULER_SWEEP_INTERVAL must be positive")
		}
	}

	if c.Observability.TracingEnabled && c.Observability.TracingEndpoint == "" {
		errs = append(errs, "TRACING_ENDPOINT is required when tracing is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}
