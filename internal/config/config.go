package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	ServerPort  string
	GinMode     string
	LogLevel    string
	LogFormat   string
	RedisURL    string
	DatabaseURL string
	MaxDBConns  int32
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string

	// AssessmentAPIURL is the single endpoint of the remote assessment
	// service; every call is a POST with an "action" discriminator.
	AssessmentAPIURL     string
	AssessmentAPITimeout time.Duration

	SnapshotTTL time.Duration
	// SessionOpenRate limits session stream opens per client IP per minute.
	SessionOpenRate int
	PolicyFile      string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // .env is optional

	return &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		GinMode:              getEnv("GIN_MODE", "debug"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "pretty"),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		MaxDBConns:           int32(getEnvInt("MAX_DB_CONNS", 8)),
		AllowedOrigins:       parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
		AssessmentAPIURL:     getEnv("ASSESSMENT_API_URL", "http://localhost:9000/assessment"),
		AssessmentAPITimeout: time.Duration(getEnvInt("ASSESSMENT_API_TIMEOUT_SECONDS", 10)) * time.Second,
		SnapshotTTL:          time.Duration(getEnvInt("SNAPSHOT_TTL_HOURS", 24)) * time.Hour,
		SessionOpenRate:      getEnvInt("SESSION_OPEN_RATE", 20),
		PolicyFile:           os.Getenv("PROCTOR_POLICY_FILE"),
	}
}

// AuditEnabled reports whether violation audit persistence is configured.
func (c *Config) AuditEnabled() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
