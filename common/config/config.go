package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Ingest    IngestConfig
	Clients   ClientsConfig
	Guard     GuardConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig holds settings for the in-process lookup cache
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// IngestConfig holds document ingestion pipeline settings
type IngestConfig struct {
	// WorkDir is where per-document page artifacts live between retries
	WorkDir   string
	RasterDPI int
	BorderPx  int
	MaxPages  int
}

// ClientsConfig holds endpoints of external collaborators
type ClientsConfig struct {
	OrdersBaseURL  string
	CatalogBaseURL string
	Timeout        time.Duration
}

// GuardConfig holds idempotency guard settings
type GuardConfig struct {
	TTL time.Duration
}

// RateLimitConfig holds ingestion submission limits
type RateLimitConfig struct {
	IngestPerMinute int64
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "marking"),
			User:        getEnv("POSTGRES_USER", "marking"),
			Password:    getEnv("POSTGRES_PASSWORD", "marking"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 15*time.Minute),
		},
		Ingest: IngestConfig{
			WorkDir:   getEnv("INGEST_WORK_DIR", "/var/lib/marking/ingest"),
			RasterDPI: getEnvInt("INGEST_RASTER_DPI", 600),
			BorderPx:  getEnvInt("INGEST_BORDER_PX", 40),
			MaxPages:  getEnvInt("INGEST_MAX_PAGES", 500),
		},
		Clients: ClientsConfig{
			OrdersBaseURL:  getEnv("ORDERS_API_URL", "http://localhost:8081"),
			CatalogBaseURL: getEnv("CATALOG_API_URL", "http://localhost:8082"),
			Timeout:        getEnvDuration("CLIENT_TIMEOUT", 15*time.Second),
		},
		Guard: GuardConfig{
			TTL: getEnvDuration("GUARD_TTL", 7*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			IngestPerMinute: int64(getEnvInt("INGEST_RATE_LIMIT_PER_MINUTE", 30)),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Ingest.RasterDPI < 72 {
		return fmt.Errorf("raster DPI too low: %d", c.Ingest.RasterDPI)
	}

	if c.Ingest.MaxPages < 1 {
		return fmt.Errorf("ingest max pages must be positive")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
