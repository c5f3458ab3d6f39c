package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds the service settings read from the environment.
type Config struct {
	ServiceName string
	LogLevel    string

	// StoreBackend is postgres or memory. It defaults to postgres when a
	// database URL is set.
	StoreBackend    string
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// RedisURL moves authorization codes to Redis when set.
	RedisURL string
	// ClientsFile is a YAML client registry seeded into the client store.
	ClientsFile string

	AMQPURL            string
	RevocationExchange string
}

// Load reads Config from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:        getEnv("SERVICE_NAME", "trilix-oauth"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("OAUTH_DATABASE_URL", os.Getenv("DATABASE_URL")),
		RedisURL:           getEnv("REDIS_URL", ""),
		ClientsFile:        getEnv("OAUTH_CLIENTS_FILE", ""),
		AMQPURL:            getEnv("AMQP_URL", ""),
		RevocationExchange: getEnv("OAUTH_REVOCATION_EXCHANGE", "oauth.events"),
	}

	defaultBackend := BackendMemory
	if cfg.DatabaseURL != "" {
		defaultBackend = BackendPostgres
	}
	cfg.StoreBackend = getEnv("OAUTH_STORE_BACKEND", defaultBackend)

	var err error
	if cfg.MaxOpenConns, err = getEnvInt("OAUTH_DB_MAX_OPEN_CONNS", 5); err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns, err = getEnvInt("OAUTH_DB_MAX_IDLE_CONNS", 2); err != nil {
		return nil, err
	}
	if cfg.ConnMaxLifetime, err = getEnvDuration("OAUTH_DB_CONN_MAX_LIFETIME", 5*time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and missing connection settings.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("OAUTH_DATABASE_URL or DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown OAUTH_STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}
