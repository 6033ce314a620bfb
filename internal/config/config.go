package config

import (
	"os"
	"strconv"
	"time"
)

// Surge pricing modes.
const (
	SurgeModeFlat      = "flat"
	SurgeModeTimeOfDay = "time_of_day"
	SurgeModeDemand    = "demand"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NewRelic  NewRelicConfig
	Log       LogConfig
	RabbitMQ  RabbitMQConfig
	Auth      AuthConfig
	Matching  MatchingConfig
	Pricing   PricingConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Migrate applies the embedded schema on startup.
	Migrate bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string
	Format string // json or text
}

// RabbitMQConfig holds the event broker configuration. Events are only
// logged when URL is empty.
type RabbitMQConfig struct {
	URL            string
	Exchange       string
	PublishTimeout time.Duration
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
}

// MatchingConfig holds driver search settings.
type MatchingConfig struct {
	RadiusKm      float64
	MinCandidates int
	LockTTL       time.Duration
}

// PricingConfig holds fare settings.
type PricingConfig struct {
	Currency  string
	SurgeMode string
	// TimeZone is used by the time of day surge.
	TimeZone string
}

// ReconcileConfig holds ride view repair settings.
type ReconcileConfig struct {
	Interval      time.Duration
	SweepInterval time.Duration
	BatchSize     int
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ridecore"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Migrate:  getBoolEnv("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "ridecore"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:            getEnv("RABBITMQ_URL", ""),
			Exchange:       getEnv("RABBITMQ_EXCHANGE", "ride.events"),
			PublishTimeout: getDurationEnv("RABBITMQ_PUBLISH_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Matching: MatchingConfig{
			RadiusKm:      getFloatEnv("MATCHING_RADIUS_KM", 5.0),
			MinCandidates: getIntEnv("MATCHING_MIN_CANDIDATES", 1),
			LockTTL:       getDurationEnv("MATCHING_LOCK_TTL", 30*time.Second),
		},
		Pricing: PricingConfig{
			Currency:  getEnv("PRICING_CURRENCY", "VND"),
			SurgeMode: getEnv("PRICING_SURGE_MODE", SurgeModeFlat),
			TimeZone:  getEnv("PRICING_TIME_ZONE", "Asia/Ho_Chi_Minh"),
		},
		Reconcile: ReconcileConfig{
			Interval:      getDurationEnv("RECONCILE_INTERVAL", 10*time.Second),
			SweepInterval: getDurationEnv("RECONCILE_SWEEP_INTERVAL", 15*time.Minute),
			BatchSize:     getIntEnv("RECONCILE_BATCH_SIZE", 100),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
