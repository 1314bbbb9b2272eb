// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	AUTHCORE_HOST="0.0.0.0"
//	AUTHCORE_PORT="8080"
//	AUTHCORE_HEALTH_PORT="9090"
//	AUTHCORE_READ_TIMEOUT="15s"
//	AUTHCORE_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	AUTHCORE_POSTGRES_URL="postgres://localhost/authcore"
//	AUTHCORE_POSTGRES_MAX_CONNS="25"
//	AUTHCORE_POSTGRES_IDLE_CONNS="5"
//
// Redis settings (invalidation bus and rate limiting):
//
//	AUTHCORE_REDIS_ADDR="localhost:6379"
//	AUTHCORE_REDIS_PASSWORD=""
//	AUTHCORE_REDIS_DB="0"
//
// Authentication settings:
//
//	AUTHCORE_AUTH_MODE="token"  # token, oidc
//	AUTHCORE_OIDC_ISSUER_URL="https://accounts.example.com"
//	AUTHCORE_OIDC_CLIENT_ID="authcore"
//
// Policy and cache settings:
//
//	AUTHCORE_POLICY_PATH="/etc/authcore/policy.yaml"
//	AUTHCORE_POLICY_WATCH="true"
//	AUTHCORE_CACHE_SIZE="4096"
//	AUTHCORE_CACHE_TTL="30s"
//
// Observability settings:
//
//	AUTHCORE_LOG_LEVEL="info"  # debug, info, warn, error
//	AUTHCORE_METRICS_ENABLED="true"
//	AUTHCORE_OTEL_ENABLED="true"
//	AUTHCORE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Auth mode: %s\n", cfg.Auth.Mode)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/observability: Uses observability configuration
//   - pkg/policy: Uses policy configuration
package config
