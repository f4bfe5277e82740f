package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Addr           string
	DatabaseURL    string
	Storage        string
	JWTSecret      string
	StorageTimeout time.Duration
	DBMaxOpenConns int
	DBMaxIdleConns int

	// RabbitMQURL empty means OrderPlaced events are dropped.
	RabbitMQURL     string
	RabbitMQQueue   string
	ChannelPoolSize int

	LogLevel log.Level
}

// Load reads the environment, after merging a .env file when one exists.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:            getEnv("PET_SHOP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		Storage:         strings.ToLower(getEnv("STORAGE", StoragePostgres)),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		StorageTimeout:  getEnvAsDuration("STORAGE_TIMEOUT", 3*time.Second),
		DBMaxOpenConns:  getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns:  getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		RabbitMQURL:     getEnv("RABBITMQ_URL", ""),
		RabbitMQQueue:   getEnv("RABBITMQ_QUEUE", "orders_placed"),
		ChannelPoolSize: getEnvAsInt("CHANNEL_POOL_SIZE", 4),
		LogLevel:        parseLevel(getEnv("LOG_LEVEL", "info")),
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is not set")
		}
	case StorageMemory:
	default:
		return errors.New("STORAGE must be postgres or memory")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}

func parseLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}
