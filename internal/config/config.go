package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"tessera/internal/cache"
	"tessera/internal/database"
	"tessera/internal/messaging"
)

// Config holds the application configuration
type Config struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogFormat string

	// Overall budget for a single scan validation request
	ScanTimeout time.Duration

	JWTSecret     string
	WebhookSecret string

	Database database.Config
	Queue    messaging.Config
	Redis    cache.Config
}

// Load reads configuration from the environment. A .env file is honored
// when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", "8080"),
		GinMode:   getEnv("GIN_MODE", "debug"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ScanTimeout: time.Duration(getEnvInt("SCAN_TIMEOUT_MS", 2000)) * time.Millisecond,

		JWTSecret:     getEnv("JWT_SECRET", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),

		Database: database.Config{
			URL:                getEnv("DB_URL", ""),
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "tessera"),
			Password:           getEnv("DB_PASSWORD", "tessera"),
			DBName:             getEnv("DB_NAME", "tessera"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		Queue: messaging.Config{
			URL:              getEnv("QUEUE_URL", "nats://localhost:4222"),
			ClusterID:        getEnv("NATS_CLUSTER_ID", "tessera"),
			ClientID:         getEnv("NATS_CLIENT_ID", "tessera-api"),
			Attempts:         getEnvInt("GENERATION_ATTEMPTS", 5),
			Backoff:          time.Duration(getEnvInt("GENERATION_BACKOFF_MS", 2000)) * time.Millisecond,
			MaxKeptCompleted: getEnvInt("MAX_ENQUEUED_COMPLETE", 100),
			MaxKeptFailed:    getEnvInt("MAX_ENQUEUED_FAIL", 50),
		},

		Redis: cache.Config{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
