package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cadencehq/authcore/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Authentication configuration
	Auth AuthConfig

	// Policy configuration
	Policy PolicyConfig

	// Resolver cache configuration
	Cache CacheConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis connection settings for the invalidation
// bus and rate limiting
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig selects and configures the authenticator
type AuthConfig struct {
	// Mode is "oidc" or "token"
	Mode string

	// OIDC settings
	OIDCIssuerURL string
	OIDCClientID  string
}

// PolicyConfig locates the route policy file
type PolicyConfig struct {
	Path  string
	Watch bool
}

// CacheConfig tunes the resolver's in-process cache
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("AUTHCORE_HOST", "0.0.0.0"),
			Port:            getEnv("AUTHCORE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("AUTHCORE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("AUTHCORE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("AUTHCORE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("AUTHCORE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("AUTHCORE_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("AUTHCORE_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("AUTHCORE_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("AUTHCORE_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("AUTHCORE_POSTGRES_CONN_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("AUTHCORE_REDIS_ADDR", ""),
			Password: getEnv("AUTHCORE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("AUTHCORE_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Mode:          getEnv("AUTHCORE_AUTH_MODE", "token"),
			OIDCIssuerURL: getEnv("AUTHCORE_OIDC_ISSUER_URL", ""),
			OIDCClientID:  getEnv("AUTHCORE_OIDC_CLIENT_ID", ""),
		},
		Policy: PolicyConfig{
			Path:  getEnv("AUTHCORE_POLICY_PATH", ""),
			Watch: getEnvBool("AUTHCORE_POLICY_WATCH", true),
		},
		Cache: CacheConfig{
			Size: getEnvInt("AUTHCORE_CACHE_SIZE", 4096),
			TTL:  getEnvDuration("AUTHCORE_CACHE_TTL", 30*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:           parseLogLevel(getEnv("AUTHCORE_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("AUTHCORE_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("AUTHCORE_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("AUTHCORE_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("AUTHCORE_OTEL_SERVICE_NAME", "authcore"),
			OTelServiceVersion: getEnv("AUTHCORE_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("AUTHCORE_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Auth.Mode {
	case "token":
	case "oidc":
		if c.Auth.OIDCIssuerURL == "" {
			return fmt.Errorf("OIDC issuer URL is required in oidc mode")
		}
		if c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC client ID is required in oidc mode")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be token or oidc)", c.Auth.Mode)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
