package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Server holds the backend's configuration.
type Server struct {
	Env          string
	DSN          string
	JWTSecret    string
	RedisAddr    string // "none" keeps invalidations in process
	Store        string // "postgres" or "memory"
	HistoryLimit int
}

// LoadServer reads configuration from the environment, loading a .env file
// first when one exists.
func LoadServer() (*Server, error) {
	_ = godotenv.Load()

	cfg := &Server{
		Env:          getEnv("ENV", "development"),
		DSN:          os.Getenv("DB_DSN"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		Store:        getEnv("STORE", "postgres"),
		HistoryLimit: getIntEnv("HISTORY_LIMIT", 100),
	}

	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, errors.New("JWT_SECRET is not set")
		}
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.Store == "postgres" && cfg.DSN == "" {
		return nil, errors.New("DB_DSN is not set")
	}
	if cfg.Store != "postgres" && cfg.Store != "memory" {
		return nil, errors.New("STORE must be postgres or memory")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Server) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
