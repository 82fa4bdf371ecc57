package config

import (
	"os"
	"time"
)

// Server captures process-level configuration: listen address, backing
// stores, and the signing secret for capability URLs. Lockout policy options
// live in internal/lockout/config.
type Server struct {
	Addr          string
	BaseURL       string
	DatabaseURL   string
	RedisURL      string
	SigningSecret string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("LOCKGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	baseURL := os.Getenv("LOCKOUT_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	secret := os.Getenv("LOCKOUT_SIGNING_SECRET")
	if secret == "" {
		// Use a default for development - should be overridden in production
		secret = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:              addr,
		BaseURL:           baseURL,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		SigningSecret:     secret,
		DBMaxOpenConns:    25,
		DBMaxIdleConns:    5,
		DBConnMaxLifetime: 5 * time.Minute,
	}
}
