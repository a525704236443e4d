// Package config loads process configuration from the environment.
//
// Loading order:
//  1. A .env file in the working directory, if present. It never overrides
//     variables already set.
//  2. envconfig populates Config from the environment, applying defaults.
//  3. validator checks the result.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// ErrorType classifies a ConfigError.
type ErrorType string

// Config error types.
const (
	ErrParsing    ErrorType = "parsing"
	ErrValidation ErrorType = "validation"
)

// ConfigError is returned by Load when configuration is unusable.
type ConfigError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config is the configuration shared by the API server and the CLI.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development" validate:"oneof=local development test staging production"`
	Port     string `envconfig:"APP_PORT" default:"8080" validate:"required,numeric"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`

	// RequireTLS rejects plain HTTP requests not forwarded from a TLS proxy.
	RequireTLS bool `envconfig:"REQUIRE_TLS" default:"false"`

	// RateLimitPerMinute is the per-IP request budget of the API.
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60" validate:"gt=0"`

	GoogleMapsAPIKey  string        `envconfig:"GOOGLE_MAPS_API_KEY" validate:"required"`
	GoogleMapsBaseURL string        `envconfig:"GOOGLE_MAPS_BASE_URL" default:"https://maps.googleapis.com" validate:"url"`
	RouteLanguage     string        `envconfig:"ROUTE_LANGUAGE"`
	RouteCacheTTL     time.Duration `envconfig:"ROUTE_CACHE_TTL" default:"5m"`

	PredictionBaseURL string `envconfig:"PREDICTION_BASE_URL" default:"http://localhost:5050" validate:"url"`
	HistoryBaseURL    string `envconfig:"HISTORY_BASE_URL" default:"http://localhost:5050" validate:"url"`

	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s" validate:"gt=0"`
	HistoryTimeout  time.Duration `envconfig:"HISTORY_TIMEOUT" default:"5s" validate:"gt=0"`

	// SeverityTable is an optional TOML file overriding the severity levels.
	SeverityTable string `envconfig:"SEVERITY_TABLE" validate:"omitempty,file"`

	// Locale selects the wording of formatted durations.
	Locale string `envconfig:"ETA_LOCALE" default:"en" validate:"bcp47_language_tag"`

	// TokenFile is read for the history credential by the CLI.
	TokenFile string `envconfig:"TOKEN_FILE"`

	// ViewTTL evicts API views idle for longer than this.
	ViewTTL time.Duration `envconfig:"VIEW_TTL" default:"30m" validate:"gt=0"`

	OTelEnabled     bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OTLPEndpoint    string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	OTelSampleRatio float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1" validate:"gte=0,lte=1"`
}

// Load reads and validates the configuration.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // a missing .env file is fine

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ZerologLevel converts LogLevel for zerolog.
func (c *Config) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
