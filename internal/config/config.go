package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration.
type Config struct {
	// MongoDB Configuration
	MongoURI      string `validate:"required,uri"`
	MongoDatabase string `validate:"required"`
	MongoTimeout  time.Duration `validate:"min=1000000000"`

	// Election Configuration
	ElectionKey         string        `validate:"required"`
	ElectionTTL         time.Duration `validate:"min=1000000000"`
	ElectionLockCollection  string    `validate:"required"`
	ElectionStatusCollection string   `validate:"required"`
	ElectionReportStatus bool

	// HTTP Server Configuration
	HTTPPort         string        `validate:"required,numeric"`
	HTTPReadTimeout  time.Duration `validate:"min=0"`
	HTTPWriteTimeout time.Duration `validate:"min=0"`

	// Logging Configuration
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json text"`

	// CORS Configuration
	CORSAllowedOrigins   string
	CORSAllowedMethods   string
	CORSAllowedHeaders   string
	CORSAllowCredentials bool
	CORSMaxAge           int `validate:"min=0"`

	// App identity, reported in the startup log line. Heartbeats carry
	// electord's built-in version string, not this value.
	AppVersion string
}

// Load reads configuration from environment variables with sensible
// defaults, then validates the result. An invalid configuration is a fatal
// startup error, not something the caller should try to work around.
func Load() (*Config, error) {
	cfg := &Config{
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017/mongoelect?authSource=admin"),
		MongoDatabase: getEnv("MONGO_DATABASE", "mongoelect"),
		MongoTimeout:  getDurationEnv("MONGO_TIMEOUT_SEC", 10) * time.Second,

		ElectionKey:              getEnv("ELECTION_KEY", "mongoelect-default"),
		ElectionTTL:              getDurationEnv("ELECTION_TTL_SEC", 15) * time.Second,
		ElectionLockCollection:   getEnv("ELECTION_LOCK_COLLECTION", "elector.locks"),
		ElectionStatusCollection: getEnv("ELECTION_STATUS_COLLECTION", "elector.leader_status"),
		ElectionReportStatus:     getBoolEnv("ELECTION_REPORT_STATUS", true),

		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		HTTPReadTimeout:  getDurationEnv("HTTP_READ_TIMEOUT_SEC", 30) * time.Second,
		HTTPWriteTimeout: getDurationEnv("HTTP_WRITE_TIMEOUT_SEC", 30) * time.Second,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		CORSAllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "*"),
		CORSAllowedMethods:   getEnv("CORS_ALLOWED_METHODS", "GET, POST, OPTIONS"),
		CORSAllowedHeaders:   getEnv("CORS_ALLOWED_HEADERS", "*"),
		CORSAllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAge:           getIntEnv("CORS_MAX_AGE", 3600),

		AppVersion: getEnv("APP_VERSION", ""),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
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
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal)
		}
		log.Printf("Warning: Invalid duration value for %s, using default %d", key, defaultValue)
	}
	return time.Duration(defaultValue)
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}
