// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Policy   PolicyConfig
	OTP      OTPConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig controls the Postgres pool.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// NATSConfig controls the notification publisher. An empty URL disables
// publishing entirely; decisions never depend on it.
type NATSConfig struct {
	URL string
}

// PolicyConfig holds the auto-escalation policy knobs.
type PolicyConfig struct {
	// HighValueThreshold is in minor currency units. Any order at or above
	// it requires CEO approval regardless of the reviewer's verdict.
	HighValueThreshold int64
	// EscalationTTL is how long a pending escalation remains decidable.
	EscalationTTL time.Duration
}

// OTPConfig holds one-time passcode settings.
type OTPConfig struct {
	TTL          time.Duration
	CodeLength   int
	MaxFailures  int
	LockDuration time.Duration
}

// Load reads configuration from the environment, applying defaults suitable
// for local development.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "be-order-verification"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8086),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "order_verification"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", ""),
		},
		Policy: PolicyConfig{
			HighValueThreshold: getEnvInt64("HIGH_VALUE_THRESHOLD", 1_000_000),
			EscalationTTL:      getEnvDuration("ESCALATION_TTL", 48*time.Hour),
		},
		OTP: OTPConfig{
			TTL:          getEnvDuration("OTP_TTL", 5*time.Minute),
			CodeLength:   getEnvInt("OTP_CODE_LENGTH", 8),
			MaxFailures:  getEnvInt("OTP_MAX_FAILURES", 5),
			LockDuration: getEnvDuration("OTP_LOCK_DURATION", 15*time.Minute),
		},
	}

	if cfg.Policy.HighValueThreshold < 0 {
		return nil, fmt.Errorf("HIGH_VALUE_THRESHOLD must be non-negative")
	}
	if cfg.OTP.CodeLength < 6 {
		return nil, fmt.Errorf("OTP_CODE_LENGTH must be at least 6")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
