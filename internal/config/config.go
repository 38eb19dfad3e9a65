package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/resilience"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all application configuration.
// Values are loaded from environment variables with defaults from the
// env-default tags.
type Config struct {
	// Server
	Port            int           `env:"PORT"             env-default:"8080"`
	LogLevel        string        `env:"LOG_LEVEL"        env-default:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`

	// Backend API
	GestorAPIURL string        `env:"GESTOR_API_URL" env-default:"http://127.0.0.1:8000"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT"   env-default:"10s"`

	// Local state
	CredentialDBPath string        `env:"CREDENTIAL_DB_PATH" env-default:"gestor.db"`
	CategoryCacheTTL time.Duration `env:"CATEGORY_CACHE_TTL" env-default:"10m"`

	// Web frontend
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:5173,http://127.0.0.1:5173"`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Circuit breaker
	Breaker BreakerConfig
}

// BreakerConfig holds the circuit breaker settings.
type BreakerConfig struct {
	MaxRequests  uint32        `env:"BREAKER_MAX_REQUESTS"  env-default:"3"`
	Interval     time.Duration `env:"BREAKER_INTERVAL"      env-default:"30s"`
	Timeout      time.Duration `env:"BREAKER_TIMEOUT"       env-default:"10s"`
	MinRequests  uint32        `env:"BREAKER_MIN_REQUESTS"  env-default:"5"`
	FailureRatio float64       `env:"BREAKER_FAILURE_RATIO" env-default:"0.6"`
}

// Resilience converts the breaker settings.
func (b BreakerConfig) Resilience() resilience.Config {
	return resilience.Config{
		MaxRequests:  b.MaxRequests,
		Interval:     b.Interval,
		Timeout:      b.Timeout,
		MinRequests:  b.MinRequests,
		FailureRatio: b.FailureRatio,
	}
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if u, err := url.Parse(c.GestorAPIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("GESTOR_API_URL must be an absolute URL, got %q", c.GestorAPIURL))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}
	if c.CredentialDBPath == "" {
		errs = append(errs, errors.New("CREDENTIAL_DB_PATH is required"))
	}
	if c.CategoryCacheTTL <= 0 {
		errs = append(errs, errors.New("CATEGORY_CACHE_TTL must be positive"))
	}
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		errs = append(errs, fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0, 1], got %v", c.Breaker.FailureRatio))
	}
	if c.Breaker.MinRequests == 0 {
		errs = append(errs, errors.New("BREAKER_MIN_REQUESTS must be at least 1"))
	}

	return errors.Join(errs...)
}
