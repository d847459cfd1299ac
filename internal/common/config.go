package common

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Cache drivers accepted by CACHE_DRIVER.
const (
	CacheDriverSQLite   = "sqlite"
	CacheDriverPostgres = "postgres"
	CacheDriverGCS      = "gcs"
	CacheDriverMemory   = "memory"
)

// Config holds the process level settings shared by every command. Backend options
// live in the per-backend JSON config files instead.
type Config struct {
	Cache    CacheConfig
	Database DatabaseConfig
	Output   OutputConfig
	Log      LogConfig
	Watch    WatchConfig
	Server   ServerConfig
}

// CacheConfig selects and locates the artifact cache.
type CacheConfig struct {
	Driver string
	Dir    string
	Bucket string
	Prefix string
}

// DatabaseConfig holds pool settings for the postgres cache driver.
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

type OutputConfig struct {
	Dir string
}

type LogConfig struct {
	Level  string
	Format string
}

// WatchConfig holds parse-watch settings.
type WatchConfig struct {
	Workers       int
	QueueSize     int
	Debounce      time.Duration
	PruneSchedule string
	PruneMaxAge   time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HealthAddr string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Driver: strings.ToLower(getEnv("CACHE_DRIVER", CacheDriverSQLite)),
			Dir:    getEnv("CACHE_DIR", defaultCacheDir()),
			Bucket: getEnv("CACHE_BUCKET", ""),
			Prefix: getEnv("CACHE_PREFIX", "docparse/cache"),
		},
		Database: DatabaseConfig{
			DSN:              getEnv("CACHE_DSN", ""),
			MaxConns:         getEnvAsInt32("CACHE_DB_MAX_CONNS", 8),
			MinConns:         getEnvAsInt32("CACHE_DB_MIN_CONNS", 0),
			MaxConnLifetime:  getEnvAsDuration("CACHE_DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("CACHE_DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("CACHE_DB_DIAL_TIMEOUT", 10*time.Second),
			StatementTimeout: getEnvAsDuration("CACHE_DB_STATEMENT_TIMEOUT", 0),
		},
		Output: OutputConfig{
			Dir: getEnv("PARSE_OUTPUT_DIR", ""),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
		Watch: WatchConfig{
			Workers:       getEnvAsInt("WATCH_WORKERS", 2),
			QueueSize:     getEnvAsInt("WATCH_QUEUE_SIZE", 256),
			Debounce:      getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
			PruneSchedule: getEnv("PRUNE_SCHEDULE", "@daily"),
			PruneMaxAge:   getEnvAsDuration("PRUNE_MAX_AGE", 30*24*time.Hour),
		},
		Server: ServerConfig{
			HealthAddr: getEnv("HEALTH_ADDR", ":8081"),
		},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "docparse")
	}
	return filepath.Join(".", ".cache", "docparse")
}

// SQLitePath is the cache database used by the sqlite driver.
func (c CacheConfig) SQLitePath() string {
	return filepath.Join(c.Dir, "cache.db")
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("CACHE_DRIVER", c.Cache.Driver, Required,
		OneOf(CacheDriverSQLite, CacheDriverPostgres, CacheDriverGCS, CacheDriverMemory))
	v.Field("LOG_LEVEL", c.Log.Level, OneOf("debug", "info", "warn", "error"))
	v.Field("LOG_FORMAT", c.Log.Format, OneOf("text", "json"))
	switch c.Cache.Driver {
	case CacheDriverSQLite:
		v.Field("CACHE_DIR", c.Cache.Dir, Required)
	case CacheDriverPostgres:
		v.Field("CACHE_DSN", c.Database.DSN, Required)
	case CacheDriverGCS:
		v.Field("CACHE_BUCKET", c.Cache.Bucket, Required)
	}
	v.Field("WATCH_WORKERS", c.Watch.Workers, Positive)
	if err := v.Error(); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid environment configuration", err)
	}
	return nil
}
