package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Filesystem layout
	Paths PathsConfig

	// Report cache
	Cache CacheConfig

	// Report directory watcher
	Watcher WatcherConfig

	// Services
	API       APIConfig
	WebSocket WebSocketConfig
	Redis     RedisConfig
	Ranking RankingConfig

	// Report archive
	Archive  ArchiveConfig
	Database DatabaseConfig
}

// PathsConfig holds the directories the reports pipeline reads and writes
type PathsConfig struct {
	DataDir    string
	ReportsDir string
	CacheDir   string
	ConfigDir  string
}

// CacheConfig holds report cache configuration
type CacheConfig struct {
	Validity    time.Duration
	MaxSizeMB   int // 0 disables size-based eviction
	CleanupDays int
}

// WatcherConfig holds report directory watcher configuration
type WatcherConfig struct {
	Enabled  bool
	Interval time.Duration
	Debounce time.Duration
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Port         int
	JWTSecret    string
	RateLimitRPS int
}

// WebSocketConfig holds the ranking update stream configuration
type WebSocketConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// RankingConfig holds farm ranking toplist configuration
type RankingConfig struct {
	TTL time.Duration
}

// ArchiveConfig holds report archive configuration
type ArchiveConfig struct {
	Enabled bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	dataDir := getEnv("FEEDMIX_DATA_DIR", "data")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Paths: PathsConfig{
			DataDir:    dataDir,
			ReportsDir: getEnv("FEEDMIX_REPORTS_DIR", filepath.Join(dataDir, "reports")),
			CacheDir:   getEnv("FEEDMIX_CACHE_DIR", filepath.Join(dataDir, "cache")),
			ConfigDir:  getEnv("FEEDMIX_CONFIG_DIR", filepath.Join(dataDir, "config")),
		},
		Cache: CacheConfig{
			Validity:    getEnvAsDuration("CACHE_VALIDITY", 24*time.Hour),
			MaxSizeMB:   getEnvAsInt("CACHE_MAX_SIZE_MB", 0),
			CleanupDays: getEnvAsInt("CACHE_CLEANUP_DAYS", 7),
		},
		Watcher: WatcherConfig{
			Enabled:  getEnvAsBool("WATCHER_ENABLED", true),
			Interval: getEnvAsDuration("WATCHER_INTERVAL", time.Minute),
			Debounce: getEnvAsDuration("WATCHER_DEBOUNCE", 500*time.Millisecond),
		},
		API: APIConfig{
			Port:         getEnvAsInt("API_PORT", 8090),
			JWTSecret:    getEnv("API_JWT_SECRET", ""),
			RateLimitRPS: getEnvAsInt("API_RATE_LIMIT_RPS", 100),
		},
		WebSocket: WebSocketConfig{
			ReadTimeout:    getEnvAsDuration("WS_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:   getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:   getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
			MaxConnections: getEnvAsInt("WS_MAX_CONNECTIONS", 1000),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		Ranking: RankingConfig{
			TTL: getEnvAsDuration("RANKING_TTL", 7*24*time.Hour),
		},
		Archive: ArchiveConfig{
			Enabled: getEnvAsBool("ARCHIVE_ENABLED", false),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "feedmix"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Paths.ReportsDir == "" {
		return fmt.Errorf("FEEDMIX_REPORTS_DIR is required")
	}
	if c.Paths.CacheDir == "" {
		return fmt.Errorf("FEEDMIX_CACHE_DIR is required")
	}
	if c.Cache.Validity <= 0 {
		return fmt.Errorf("CACHE_VALIDITY must be positive")
	}
	if c.Cache.MaxSizeMB < 0 {
		return fmt.Errorf("CACHE_MAX_SIZE_MB must not be negative")
	}
	if c.Watcher.Enabled && c.Watcher.Interval <= 0 {
		return fmt.Errorf("WATCHER_INTERVAL must be positive")
	}
	if c.WebSocket.PingInterval > 0 && c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return fmt.Errorf("WS_PING_INTERVAL must be shorter than WS_READ_TIMEOUT")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is set")
	}
	if c.Archive.Enabled && c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required when ARCHIVE_ENABLED is set")
	}
	return nil
}

// RedisAddr returns the host:port of the Redis server
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// CacheMaxSizeBytes returns the cache size limit in bytes, 0 when unlimited
func (c *Config) CacheMaxSizeBytes() int64 {
	return int64(c.Cache.MaxSizeMB) * 1024 * 1024
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
