package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/eventmatch/chat-client/internal/session"
)

// Config carries the environment the client runs against.
type Config struct {
	APIBaseURL string
	SocketURL  string
	AuthToken  string
	Role       session.Role
	LogLevel   string
}

// Load reads configuration from a .env file when present, falling back to
// system environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL: getenv("API_BASE_URL", "http://localhost:8080/api"),
		SocketURL:  getenv("SOCKET_URL", "ws://localhost:8080/ws"),
		AuthToken:  os.Getenv("AUTH_TOKEN"),
		Role:       session.Role(getenv("AUTH_ROLE", string(session.RoleUser))),
		LogLevel:   getenv("LOG_LEVEL", "info"),
	}
	if cfg.AuthToken == "" {
		return nil, errors.New("AUTH_TOKEN is required")
	}
	if cfg.Role != session.RoleUser && cfg.Role != session.RoleOrganizer {
		return nil, errors.Errorf("unknown AUTH_ROLE %q", cfg.Role)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
