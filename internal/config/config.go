// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config holds the application configuration. It is not modified after Load.
type Config struct {
	EnvFile        string
	StateBackend   string
	StatePath      string
	DatabasePath   string
	LockPath       string
	SearchURL      string
	StatusAddr     string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration
	RunOffset      time.Duration
	PageRate       float64
	MaxPages       int
	MinPages       int
	Notify         bool
}

// Default values
const (
	defaultSearchURL      = "http://search.twitter.com/search.json?q=%22polar%20bear%22&result_type=mixed&rpp=100"
	defaultRequestTimeout = 30 * time.Second
	defaultRunOffset      = time.Minute
	defaultPageRate       = 2.0
	defaultMinPages       = 10
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	var envFile string
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			envFile = path
			break
		}
	}

	statePath := getEnvString("STATE_PATH", getDefaultStatePath())

	cfg := &Config{
		EnvFile:        envFile,
		StateBackend:   strings.ToLower(getEnvString("STATE_BACKEND", BackendJSON)),
		StatePath:      statePath,
		DatabasePath:   getEnvString("DATABASE_PATH", getDefaultDatabasePath()),
		LockPath:       getEnvString("LOCK_PATH", filepath.Join(filepath.Dir(statePath), "polarstats.lock")),
		SearchURL:      getEnvString("SEARCH_URL", defaultSearchURL),
		StatusAddr:     getEnvString("STATUS_ADDR", ""),
		LogLevel:       getEnvString("LOG_LEVEL", "info"),
		LogFormat:      getEnvString("LOG_FORMAT", "text"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", defaultRequestTimeout),
		RunOffset:      getEnvDuration("RUN_OFFSET", defaultRunOffset),
		PageRate:       getEnvFloat("SEARCH_PAGE_RATE", defaultPageRate),
		MaxPages:       getEnvInt("SEARCH_MAX_PAGES", 0),
		MinPages:       getEnvInt("SEARCH_MIN_PAGES", defaultMinPages),
		Notify:         getEnvBool("NOTIFY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, path := range []string{cfg.StatePath, cfg.DatabasePath, cfg.LockPath} {
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	switch c.StateBackend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", BackendJSON, BackendSQLite, c.StateBackend)
	}
	if c.StatePath == "" {
		return fmt.Errorf("STATE_PATH is required")
	}
	if c.StateBackend == BackendSQLite && c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required for the sqlite backend")
	}
	if c.SearchURL == "" {
		return fmt.Errorf("SEARCH_URL is required")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("SEARCH_MAX_PAGES must not be negative")
	}
	if c.MinPages < 0 {
		return fmt.Errorf("SEARCH_MIN_PAGES must not be negative")
	}
	if c.PageRate < 0 {
		return fmt.Errorf("SEARCH_PAGE_RATE must not be negative")
	}
	if c.RunOffset < 0 || c.RunOffset >= time.Hour {
		return fmt.Errorf("RUN_OFFSET must be within [0, 1h), got %s", c.RunOffset)
	}
	return nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "polar-stats", ".env"),
			filepath.Join(home, ".polar-stats", ".env"),
		)
	}

	return paths
}

// getDataDir returns the default data directory.
func getDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".polar-stats"
	}
	return filepath.Join(home, ".polar-stats")
}

// getDefaultStatePath returns the default path for the JSON state record.
func getDefaultStatePath() string {
	return filepath.Join(getDataDir(), "data")
}

// getDefaultDatabasePath returns the default path for the SQLite database.
func getDefaultDatabasePath() string {
	return filepath.Join(getDataDir(), "stats.db")
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
