package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schemaforge/registry-core/pkg/observability"
	"github.com/schemaforge/registry-core/pkg/storage"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration (health/metrics endpoints only; the registry
	// core has no public HTTP API of its own).
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Compatibility configuration
	Compatibility CompatibilityConfig

	// Events configuration (webhook dispatch + circuit breaker)
	Events EventsConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds the health/metrics server's configuration.
type ServerConfig struct {
	Host            string
	HealthPort      string
	ShutdownTimeout time.Duration
}

// CompatibilityConfig controls the default compatibility mode new subjects
// are created with, absent an explicit per-subject override.
type CompatibilityConfig struct {
	DefaultMode string
}

// EventsConfig controls webhook delivery retry and circuit-breaker
// behavior.
type EventsConfig struct {
	HTTPTimeout             time.Duration
	MaxRetries              int
	InitialRetryDelay       time.Duration
	MaxRetryDelay           time.Duration
	CircuitFailureThreshold int
	CircuitResetTimeout     time.Duration
}

// ObservabilityConfig holds observability settings.
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

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Compatibility: loadCompatibilityConfig(),
		Events:        loadEventsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("REGISTRY_HOST", "0.0.0.0"),
		HealthPort:      getEnv("REGISTRY_HEALTH_PORT", "9090"),
		ShutdownTimeout: getEnvDuration("REGISTRY_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("REGISTRY_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("REGISTRY_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("REGISTRY_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("REGISTRY_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("REGISTRY_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if s3Endpoint := getEnv("REGISTRY_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("REGISTRY_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("REGISTRY_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("REGISTRY_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("REGISTRY_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("REGISTRY_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	if redisURL := getEnv("REGISTRY_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("REGISTRY_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("REGISTRY_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("REGISTRY_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("REGISTRY_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	if cacheEnabled := getEnv("REGISTRY_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if l1CacheSize := getEnvInt("REGISTRY_L1_CACHE_SIZE", 0); l1CacheSize > 0 {
		cfg.L1CacheSize = l1CacheSize
	}

	return cfg
}

func loadCompatibilityConfig() CompatibilityConfig {
	return CompatibilityConfig{
		DefaultMode: getEnv("REGISTRY_DEFAULT_COMPATIBILITY_MODE", "BACKWARD"),
	}
}

func loadEventsConfig() EventsConfig {
	return EventsConfig{
		HTTPTimeout:             getEnvDuration("REGISTRY_WEBHOOK_TIMEOUT", 10*time.Second),
		MaxRetries:              getEnvInt("REGISTRY_WEBHOOK_MAX_RETRIES", 5),
		InitialRetryDelay:       getEnvDuration("REGISTRY_WEBHOOK_INITIAL_DELAY", 500*time.Millisecond),
		MaxRetryDelay:           getEnvDuration("REGISTRY_WEBHOOK_MAX_DELAY", 30*time.Second),
		CircuitFailureThreshold: getEnvInt("REGISTRY_CIRCUIT_FAILURE_THRESHOLD", 5),
		CircuitResetTimeout:     getEnvDuration("REGISTRY_CIRCUIT_RESET_TIMEOUT", 30*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("REGISTRY_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("REGISTRY_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("REGISTRY_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("REGISTRY_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("REGISTRY_OTEL_SERVICE_NAME", "registry-core"),
		OTelServiceVersion: getEnv("REGISTRY_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("REGISTRY_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.S3Endpoint == "" || c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3 configuration is required for schema payload storage")
	}

	if _, err := compatibilityModeValid(c.Compatibility.DefaultMode); err != nil {
		return err
	}

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

// compatibilityModeValid checks a mode name against the fixed seven-mode
// set without importing pkg/compatibility, which would make this leaf
// package depend on the engine it configures.
func compatibilityModeValid(mode string) (string, error) {
	switch mode {
	case "NONE", "BACKWARD", "FORWARD", "FULL",
		"BACKWARD_TRANSITIVE", "FORWARD_TRANSITIVE", "FULL_TRANSITIVE":
		return mode, nil
	default:
		return "", fmt.Errorf("invalid default compatibility mode: %s", mode)
	}
}

// parseLogLevel parses a log level string.
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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
