package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (availability cache)
	Redis RedisConfig

	// Booking hold configuration
	Hold HoldConfig

	// Outbox publisher configuration
	Outbox OutboxConfig

	// Expiration reaper configuration
	Reaper ReaperConfig

	// Polar payment gateway configuration
	Polar PolarConfig

	// Notification gateway configuration
	Notify NotifyConfig

	// Operator (admin) authentication configuration
	Admin AdminConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port          string
	Environment   string // development, staging, production
	LogLevel      string // debug, info, warn, error
	ShutdownGrace time.Duration
	HealthTimeout time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// DSN builds the lib/pq connection string from the individual parts.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds the availability cache configuration. An empty Addr
// disables the cache entirely.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// HoldConfig holds seat hold configuration
type HoldConfig struct {
	TTL time.Duration
}

// OutboxConfig holds outbox publisher configuration
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	RetryDelays  []time.Duration
	CallTimeout  time.Duration
	Parallelism  int
}

// ReaperConfig holds hold expiration reaper configuration
type ReaperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// PolarConfig holds Polar checkout gateway configuration
type PolarConfig struct {
	BaseURL       string
	AccessToken   string
	SuccessURL    string
	WebhookSecret string // shared secret for inbound webhook signatures (SECRET - never expose)
	Timeout       time.Duration
}

// NotifyConfig holds the ticket notification gateway configuration
type NotifyConfig struct {
	BaseURL string
	APIKey  string
	Sender  string
	Timeout time.Duration
}

// AdminConfig holds operator authentication configuration
type AdminConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	BcryptCost        int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			Environment:   getEnv("ENVIRONMENT", "development"),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
			ShutdownGrace: time.Duration(getEnvAsInt("SHUTDOWN_GRACE_S", 30)) * time.Second,
			HealthTimeout: time.Duration(getEnvAsInt("HEALTH_TIMEOUT_S", 5)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", "postgres"),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", "reservations"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvAsInt("REDIS_AVAILABILITY_TTL_S", 5)) * time.Second,
		},
		Hold: HoldConfig{
			TTL: time.Duration(getEnvAsInt("HOLD_TTL_MIN", 15)) * time.Minute,
		},
		Outbox: OutboxConfig{
			PollInterval: time.Duration(getEnvAsInt("OUTBOX_POLL_MS", 1000)) * time.Millisecond,
			BatchSize:    getEnvAsInt("OUTBOX_BATCH", 100),
			MaxRetries:   getEnvAsInt("OUTBOX_MAX_RETRIES", 3),
			RetryDelays:  getEnvAsDurationsMs("OUTBOX_RETRY_DELAYS_MS", []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}),
			CallTimeout:  time.Duration(getEnvAsInt("OUTBOX_CALL_TIMEOUT_S", 10)) * time.Second,
			Parallelism:  getEnvAsInt("OUTBOX_PARALLELISM", 10),
		},
		Reaper: ReaperConfig{
			Interval:  time.Duration(getEnvAsInt("REAP_INTERVAL_S", 60)) * time.Second,
			BatchSize: getEnvAsInt("REAP_BATCH", 100),
		},
		Polar: PolarConfig{
			BaseURL:       getEnv("POLAR_BASE_URL", "https://api.polar.sh"),
			AccessToken:   getEnv("POLAR_ACCESS_TOKEN", ""),
			SuccessURL:    getEnv("POLAR_SUCCESS_URL", ""),
			WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
			Timeout:       time.Duration(getEnvAsInt("POLAR_TIMEOUT_S", 30)) * time.Second,
		},
		Notify: NotifyConfig{
			BaseURL: getEnv("NOTIFY_BASE_URL", ""),
			APIKey:  getEnv("NOTIFY_API_KEY", ""),
			Sender:  getEnv("NOTIFY_SENDER", "tickets@airvoyage.example"),
			Timeout: time.Duration(getEnvAsInt("NOTIFY_TIMEOUT_S", 10)) * time.Second,
		},
		Admin: AdminConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			BcryptCost:        getEnvAsInt("BCRYPT_COST", 12),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Webhook-Signature"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}

	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}

	if c.Polar.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}

	if c.Server.Environment != "development" {
		// A wildcard origin in production defeats the point of CORS
		if len(c.CORS.AllowedOrigins) == 1 && c.CORS.AllowedOrigins[0] == "*" {
			return fmt.Errorf("CORS_ORIGINS is required outside development")
		}

		if c.Admin.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required outside development")
		}
	}

	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH must be positive")
	}

	if c.Outbox.MaxRetries < 0 {
		return fmt.Errorf("OUTBOX_MAX_RETRIES must not be negative")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func getEnvAsDurationsMs(key string, defaultValue []time.Duration) []time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []time.Duration
	for _, v := range strings.Split(valueStr, ",") {
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || ms < 0 {
			log.Printf("Invalid duration list for %s, using default", key)
			return defaultValue
		}
		result = append(result, time.Duration(ms)*time.Millisecond)
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
