package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BaseURL  string // Panel backend base URL (default: http://127.0.0.1:5000)
	AuthPath string // Prefix of the auth endpoints (default: /api/auth)

	StoreKind     string // Credential store (sqlite, redis, memory) (default: sqlite)
	DatabaseFile  string // SQLite credential file (default: ./stockpanel.db)
	RedisAddr     string // Redis address (default: localhost:6379)
	RedisPassword string // Optional
	RedisDB       int    // Redis database number (default: 0)
	RedisPrefix   string // Key prefix shared by every instance of one panel (default: stockpanel:)
	MasterKeyPath string // Optional: seal stored credentials with this key file (or STOCKPANEL_MASTER_KEY)

	SessionTimeout   time.Duration // Inactivity timeout (default: 30m)
	RefreshThreshold time.Duration // Refresh this long before the token expires (default: 5m)
	HTTPTimeout      time.Duration // Per-request timeout (default: 30s)
	RateLimit        float64       // Outbound requests per second, 0 for unlimited (default: 0)

	SentryDSN string // Optional: report connection problems to Sentry
	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)
}

// LoadConfig reads the environment, after loading .env from the working
// directory when there is one.
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := Config{
		BaseURL:          getEnvOrDefault("STOCKPANEL_BASE_URL", "http://127.0.0.1:5000"),
		AuthPath:         getEnvOrDefault("STOCKPANEL_AUTH_PATH", "/api/auth"),
		StoreKind:        getEnvOrDefault("STOCKPANEL_STORE", "sqlite"),
		DatabaseFile:     getEnvOrDefault("STOCKPANEL_DATABASE_FILE", "stockpanel.db"),
		RedisAddr:        getEnvOrDefault("STOCKPANEL_REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("STOCKPANEL_REDIS_PASSWORD"),
		RedisDB:          getEnvIntOrDefault("STOCKPANEL_REDIS_DB", 0),
		RedisPrefix:      getEnvOrDefault("STOCKPANEL_REDIS_PREFIX", "stockpanel:"),
		MasterKeyPath:    os.Getenv("STOCKPANEL_MASTER_KEY_PATH"),
		SessionTimeout:   getEnvDurationOrDefault("STOCKPANEL_SESSION_TIMEOUT", 30*time.Minute),
		RefreshThreshold: getEnvDurationOrDefault("STOCKPANEL_REFRESH_THRESHOLD", 5*time.Minute),
		HTTPTimeout:      getEnvDurationOrDefault("HTTP_TIMEOUT", 30*time.Second),
		SentryDSN:        os.Getenv("SENTRY_DSN"),
		Env:              getEnvOrDefault("ENV", "dev"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:        getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if v := os.Getenv("STOCKPANEL_RATE_LIMIT"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r > 0 {
			cfg.RateLimit = r
		}
		// Anything else leaves the client unlimited
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
