package app

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
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// defaultSalt is the application salt baked into every client. Every client
// must use the same value or direct keys will not agree.
const defaultSalt = "wellnest-v1-app-salt"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home       string // config directory, e.g. $HOME/.wellnest
	Backend    string // memory, sqlite or redis
	SQLitePath string // defaults to <Home>/wellnest.db
	RedisURL   string // e.g. redis://127.0.0.1:6379/0
	AppSalt    string

	MaxRetries     int
	RetryDelay     time.Duration
	ReconnectPause time.Duration
	HealthPath     string
	HealthTimeout  time.Duration

	MessageWindow  int
	TypingInterval time.Duration

	LogLevel    string
	Env         string
	MetricsAddr string // empty disables the /metrics listener
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Home:           getEnv("WELLNEST_HOME", ""),
		Backend:        getEnv("WELLNEST_BACKEND", BackendSQLite),
		SQLitePath:     getEnv("WELLNEST_SQLITE_PATH", ""),
		RedisURL:       getEnv("WELLNEST_REDIS_URL", ""),
		AppSalt:        getEnv("WELLNEST_APP_SALT", defaultSalt),
		MaxRetries:     getEnvInt("WELLNEST_MAX_RETRIES", 3),
		RetryDelay:     getEnvDuration("WELLNEST_RETRY_DELAY", time.Second),
		ReconnectPause: getEnvDuration("WELLNEST_RECONNECT_PAUSE", time.Second),
		HealthPath:     getEnv("WELLNEST_HEALTH_PATH", "_health/ping"),
		HealthTimeout:  getEnvDuration("WELLNEST_HEALTH_TIMEOUT", 5*time.Second),
		MessageWindow:  getEnvInt("WELLNEST_MESSAGE_WINDOW", 50),
		TypingInterval: getEnvDuration("WELLNEST_TYPING_INTERVAL", 2*time.Second),
		LogLevel:       getEnv("WELLNEST_LOG_LEVEL", "info"),
		Env:            getEnv("WELLNEST_ENV", "development"),
		MetricsAddr:    getEnv("WELLNEST_METRICS_ADDR", ""),
	}
	return cfg, nil
}

// Resolve fills derived defaults and validates the result. Call it after
// command-line overrides have been applied.
func (c *Config) Resolve() error {
	if c.Home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home: %w", err)
		}
		c.Home = filepath.Join(dir, ".wellnest")
	}
	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.Home, "wellnest.db")
	}
	return c.Validate()
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("WELLNEST_REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.AppSalt == "" {
		return fmt.Errorf("WELLNEST_APP_SALT cannot be empty")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("WELLNEST_MAX_RETRIES must be >= 0")
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("WELLNEST_RETRY_DELAY must be > 0")
	}
	if c.HealthPath == "" {
		return fmt.Errorf("WELLNEST_HEALTH_PATH cannot be empty")
	}
	if c.MessageWindow <= 0 {
		return fmt.Errorf("WELLNEST_MESSAGE_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
