package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

// Storage backends of the document server.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Server is the configuration of the document server.
type Server struct {
	Port    int
	Backend string

	DBPath string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisNamespace string

	JWTSecret string

	LogLevel  string
	LogFormat string
}

// LoadServer reads the server configuration from the environment, after
// loading a .env file from the working directory if one exists.
func LoadServer() (Server, error) {
	_ = godotenv.Load()

	port, err := getenvInt("PORT", 8080)
	if err != nil {
		return Server{}, err
	}
	redisDB, err := getenvInt("REDIS_DB", 0)
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Port:           port,
		Backend:        strings.ToLower(getenv("STORAGE_BACKEND", BackendSQLite)),
		DBPath:         getenv("DB_PATH", "./data/documents.db"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getenv("REDIS_PASSWORD", ""),
		RedisDB:        redisDB,
		RedisNamespace: getenv("REDIS_NAMESPACE", "gastrack"),
		JWTSecret:      getenv("JWT_SECRET", ""),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      strings.ToLower(getenv("LOG_FORMAT", "text")),
	}

	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (s Server) validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	switch s.Backend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown storage backend %q", s.Backend)
	}
	if s.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}
