// internal/config/config.go

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Upstream    UpstreamConfig
	Explorer    ExplorerConfig
	Stats       StatsConfig
	Geocoder    GeocoderConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// UpstreamConfig holds incidents API client configuration
type UpstreamConfig struct {
	BaseURL      string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// ExplorerConfig holds explorer session configuration
type ExplorerConfig struct {
	SubjectPrefix string
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// StatsConfig holds analytics cache configuration
type StatsConfig struct {
	CacheTTL      time.Duration
	SweepInterval time.Duration
}

// GeocoderConfig holds geocoding backfill configuration
type GeocoderConfig struct {
	Enabled           bool
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Interval          time.Duration
	BatchSize         int
	Subject           string
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "sfportal"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Upstream: UpstreamConfig{
			BaseURL:      getEnv("UPSTREAM_BASE_URL", "http://localhost:8080"),
			Timeout:      getEnvAsDuration("UPSTREAM_TIMEOUT", 30*time.Second),
			UserAgent:    getEnv("UPSTREAM_USER_AGENT", "sfportal/1.0"),
			MaxBodyBytes: getEnvAsInt64("UPSTREAM_MAX_BODY_BYTES", 64<<20),
		},
		Explorer: ExplorerConfig{
			SubjectPrefix: getEnv("EXPLORER_SUBJECT_PREFIX", "explorer"),
			IdleTTL:       getEnvAsDuration("EXPLORER_IDLE_TTL", 30*time.Minute),
			SweepInterval: getEnvAsDuration("EXPLORER_SWEEP_INTERVAL", 1*time.Minute),
		},
		Stats: StatsConfig{
			CacheTTL:      getEnvAsDuration("STATS_CACHE_TTL", 5*time.Minute),
			SweepInterval: getEnvAsDuration("STATS_SWEEP_INTERVAL", 10*time.Minute),
		},
		Geocoder: GeocoderConfig{
			Enabled:           getEnvAsBool("GEOCODER_ENABLED", true),
			BaseURL:           getEnv("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
			UserAgent:         getEnv("GEOCODER_USER_AGENT", "sfportal/1.0"),
			Timeout:           getEnvAsDuration("GEOCODER_TIMEOUT", 10*time.Second),
			RequestsPerSecond: getEnvAsFloat("GEOCODER_RPS", 1.0),
			Interval:          getEnvAsDuration("GEOCODER_INTERVAL", 15*time.Minute),
			BatchSize:         getEnvAsInt("GEOCODER_BATCH_SIZE", 50),
			Subject:           getEnv("GEOCODER_SUBJECT", "geocode.backfill"),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL must be set")
	}
	if config.Geocoder.Enabled && config.Geocoder.UserAgent == "" {
		return fmt.Errorf("geocoder user agent must be set when geocoding is enabled")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
