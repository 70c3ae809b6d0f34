// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables.
// Most settings have defaults; LoadConfig fails unless REGISTRY_POSTGRES_URL,
// REGISTRY_S3_ENDPOINT and REGISTRY_S3_BUCKET are set.
//
// # Configuration Structure
//
// Server settings (health/metrics endpoint only):
//
//	REGISTRY_HOST="0.0.0.0"
//	REGISTRY_HEALTH_PORT="9090"
//	REGISTRY_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	REGISTRY_POSTGRES_URL="postgres://localhost/registry"
//	REGISTRY_POSTGRES_MAX_CONNS="20"
//	REGISTRY_S3_ENDPOINT="http://localhost:9000"
//	REGISTRY_S3_BUCKET="schemas"
//	REGISTRY_S3_REGION="us-east-1"
//
// Cache settings:
//
//	REGISTRY_CACHE_ENABLED="true"
//	REGISTRY_REDIS_URL="redis://localhost:6379"
//	REGISTRY_REDIS_POOL_SIZE="10"
//	REGISTRY_L1_CACHE_SIZE="1000"
//
// Compatibility and webhook settings:
//
//	REGISTRY_DEFAULT_COMPATIBILITY_MODE="BACKWARD"
//	REGISTRY_WEBHOOK_MAX_RETRIES="5"
//	REGISTRY_CIRCUIT_FAILURE_THRESHOLD="5"
//
// Observability settings:
//
//	REGISTRY_LOG_LEVEL="info"  # debug, info, warn, error
//	REGISTRY_METRICS_ENABLED="true"
//	REGISTRY_OTEL_ENABLED="false"
//	REGISTRY_OTEL_ENDPOINT="localhost:4317"
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
//	fmt.Printf("Health: %s:%s\n", cfg.Server.Host, cfg.Server.HealthPort)
//	fmt.Printf("Storage: %s\n", cfg.Storage.Type)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
