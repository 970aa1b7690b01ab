package config

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config holds session runtime configuration.
type Config struct {
	LogLevel        string
	SessionTTL      time.Duration
	SilenceTimeout  time.Duration
	AuthorityTTL    time.Duration
	ConfirmationTTL time.Duration
	PolicyPath      string
	AuditDBPath     string
	JWTSecret       string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	auditDBPath := os.Getenv("AUDIT_DB_PATH")
	if auditDBPath == "" {
		// Ephemeral by default; set a file path for a durable mirror.
		auditDBPath = ":memory:"
	}

	return &Config{
		LogLevel:        logLevel,
		SessionTTL:      durationEnv("SESSION_TTL", 30*time.Minute),
		SilenceTimeout:  durationEnv("SILENCE_TIMEOUT", 5*time.Minute),
		AuthorityTTL:    durationEnv("AUTHORITY_TTL", 30*time.Minute),
		ConfirmationTTL: durationEnv("CONFIRMATION_TTL", 5*time.Minute),
		PolicyPath:      os.Getenv("POLICY_PATH"),
		AuditDBPath:     auditDBPath,
		JWTSecret:       os.Getenv("JWT_SECRET"),
	}
}

// SlogLevel maps the configured log level string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
