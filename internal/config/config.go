package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	Admin     AdminConfig
	Database  DatabaseConfig
	Remote    RemoteConfig
	Cache     CacheConfig
	Log       LogConfig
}

// AdminConfig holds the single operator account used by the HTTP API
type AdminConfig struct {
	Username     string
	PasswordHash string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	DataPath string
	Alter    bool
}

// RemoteConfig tunes the remote table client.
// Credentials are not here: they are part of the persisted SyncSettings.
type RemoteConfig struct {
	BaseURL         string
	MaxAttempts     int
	BackoffBase     time.Duration
	PageSize        int
	MaxPages        int
	BatchSize       int
	DeleteBatchSize int
	BatchPause      time.Duration
}

// CacheConfig holds cache proxy configuration
type CacheConfig struct {
	ManifestPath string
	DBPath       string // empty = in-memory store
	Origin       string // upstream serving the web app
	Prefix       string
	NoCache      []string
	Manual       bool // keep new generations waiting until skip-waiting
}

// LogConfig holds log rotation settings
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3001"),
		JWTSecret: jwtSecret,
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "magazzino"),
			DataPath: getEnv("PG_DATA_PATH", "./db_data"),
			Alter:    getBoolEnv("DB_ALTER", true),
		},
		Remote: RemoteConfig{
			BaseURL:         getEnv("REMOTE_BASE_URL", "https://api.airtable.com/v0"),
			MaxAttempts:     getIntEnv("REMOTE_MAX_ATTEMPTS", 3),
			BackoffBase:     getDurationEnv("REMOTE_BACKOFF_BASE", time.Second),
			PageSize:        getIntEnv("REMOTE_PAGE_SIZE", 100),
			MaxPages:        getIntEnv("REMOTE_MAX_PAGES", 1000),
			BatchSize:       getIntEnv("REMOTE_BATCH_SIZE", 10),
			DeleteBatchSize: getIntEnv("REMOTE_DELETE_BATCH_SIZE", 5),
			BatchPause:      getDurationEnv("REMOTE_BATCH_PAUSE", 200*time.Millisecond),
		},
		Cache: CacheConfig{
			ManifestPath: getEnv("CACHE_MANIFEST_PATH", "./cache-manifest.yaml"),
			DBPath:       os.Getenv("CACHE_DB_PATH"),
			Origin:       getEnv("CACHE_ORIGIN", "http://127.0.0.1:5173"),
			Prefix:       getEnv("CACHE_PREFIX", "magazzino"),
			Manual:       getBoolEnv("CACHE_MANUAL_ACTIVATION", false),
			NoCache:      []string{"api.airtable.com", "/api/"},
		},
		Log: LogConfig{
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getIntEnv("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getIntEnv("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getIntEnv("LOG_MAX_AGE_DAYS", 30),
		},
	}

	if cfg.Remote.MaxAttempts < 1 {
		return nil, fmt.Errorf("REMOTE_MAX_ATTEMPTS must be at least 1, got %d", cfg.Remote.MaxAttempts)
	}
	if cfg.Remote.BatchSize < 1 || cfg.Remote.DeleteBatchSize < 1 {
		return nil, fmt.Errorf("remote batch sizes must be positive")
	}

	return cfg, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
