package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"GATEWAY_BASE_URL"` specify the environment variable name.
// `default:""` provides a default value if the env var is not set.
// `required:"true"` makes an environment variable mandatory.
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"` // e.g., development, staging, production
	Log        LogConfig
	Gateway    GatewayConfig
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Catalog    CatalogConfig
	Metrics    MetricsConfig
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	// Empty values keep the APP_ENV defaults.
	Level  string `envconfig:"LOG_LEVEL"`  // debug, info, warn, error
	Format string `envconfig:"LOG_FORMAT"` // console or json
}

// GatewayConfig describes the remote storefront backend.
type GatewayConfig struct {
	BaseURL   string        `envconfig:"GATEWAY_BASE_URL" required:"true"`
	Timeout   time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"0s"` // 0 waits as long as the caller's context allows
	RateQPS   float64       `envconfig:"GATEWAY_RATE_QPS" default:"10"`
	RateBurst int           `envconfig:"GATEWAY_RATE_BURST" default:"5"`
	UserAgent string        `envconfig:"GATEWAY_USER_AGENT" default:"storefront-sync/1.0"`
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s"`
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
}

// GrpcServerConfig holds gRPC server-specific configurations.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// CatalogConfig tunes the state engine.
type CatalogConfig struct {
	CategoriesFile string `envconfig:"CATALOG_CATEGORIES_FILE"`
	// DiscardStale switches overlapping requests from last-settled-wins to
	// latest-issued-wins.
	DiscardStale bool `envconfig:"CATALOG_DISCARD_STALE" default:"false"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	Path string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// Load initializes the configuration from environment variables.
// It should be called once during application startup.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil { // The first argument is a prefix for env vars, empty means no prefix
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid GATEWAY_BASE_URL %q", c.Gateway.BaseURL)
	}
	if c.Gateway.Timeout < 0 {
		return errors.New("GATEWAY_TIMEOUT must not be negative")
	}
	if c.Gateway.RateQPS > 0 && c.Gateway.RateBurst < 1 {
		return errors.New("GATEWAY_RATE_BURST must be at least 1 when GATEWAY_RATE_QPS is set")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}
