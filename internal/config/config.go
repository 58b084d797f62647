// Package config loads server settings from the environment and an optional
// .env file. Command-line flags in cmd/menjava override these values.
package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	DBPath        string
	Addr          string
	AdminUser     string
	LogPath       string
	RedisURL      string
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// Defaults.
const (
	DefaultDBPath        = "menjava.sqlite3"
	DefaultAddr          = ":8080"
	DefaultAdminUser     = "Admin"
	DefaultIdleTimeout   = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Load reads .env (if present) and then the MENJAVA_* variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env file", "error", err)
	}

	return &Config{
		DBPath:        getEnv("MENJAVA_DB", DefaultDBPath),
		Addr:          getEnv("MENJAVA_ADDR", DefaultAddr),
		AdminUser:     getEnv("MENJAVA_ADMIN", DefaultAdminUser),
		LogPath:       getEnv("MENJAVA_LOG", ""),
		RedisURL:      getEnv("MENJAVA_REDIS_URL", ""),
		IdleTimeout:   getDuration("MENJAVA_IDLE_TIMEOUT", DefaultIdleTimeout),
		SweepInterval: getDuration("MENJAVA_SWEEP_INTERVAL", DefaultSweepInterval),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid duration", "key", key, "value", value)
		return defaultValue
	}
	return d
}
