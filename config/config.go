package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 32

type Config struct {
	HTTPPort string
	LogLevel string
	GinMode  string

	DBDriver       string
	DBUser         string
	DBPassword     string
	DBHost         string
	DBPort         string
	DBName         string
	DBPath         string
	DBMaxOpenConns int
	DBQueryTimeout time.Duration

	JWTSecret      string
	AdminJWTSecret string
	TokenTTL       time.Duration

	RabbitMQURL     string
	OrderExchange   string
	OrderQueue      string
	DeadLetterQueue string
	MaxPriority     int

	HighValueThreshold float64
	VerifyTotal        bool

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string
}

// LoadConfig reads the environment. A .env file in the working directory,
// when present, seeds variables that are not already set.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}

	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		GinMode:  getEnv("GIN_MODE", "release"),

		DBDriver:       getEnv("DB_DRIVER", "mysql"),
		DBUser:         getEnv("DB_USER", "root"),
		DBPassword:     getEnvFromFile("DB_PASSWORD_FILE", "DB_PASSWORD", ""),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "3306"),
		DBName:         getEnv("DB_NAME", "storefront"),
		DBPath:         getEnv("DB_PATH", "./storefront.db"),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 20),
		DBQueryTimeout: getEnvDuration("DB_QUERY_TIMEOUT", 10*time.Second),

		JWTSecret:      getEnvFromFile("JWT_SECRET_FILE", "JWT_SECRET", ""),
		AdminJWTSecret: getEnvFromFile("ADMIN_JWT_SECRET_FILE", "ADMIN_JWT_SECRET", ""),
		TokenTTL:       getEnvDuration("TOKEN_TTL", 24*time.Hour),

		RabbitMQURL:     getEnv("RABBITMQ_URL", ""),
		OrderExchange:   getEnv("ORDER_EXCHANGE", "orders_exchange"),
		OrderQueue:      getEnv("ORDER_QUEUE", "orders_queue"),
		DeadLetterQueue: getEnv("DEAD_LETTER_QUEUE", "dead_letter_queue"),
		MaxPriority:     getEnvInt("MAX_PRIORITY", 10),

		HighValueThreshold: getEnvFloat("HIGH_VALUE_THRESHOLD", 1000),
		VerifyTotal:        getEnv("ORDER_VERIFY_TOTAL", "false") == "true",

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnvFromFile("SMTP_PASSWORD_FILE", "SMTP_PASSWORD", ""),
		MailFrom:     getEnv("MAIL_FROM", "orders@localhost"),
	}
}

// Validate refuses configurations the service must not start with. There
// are no fallback signing secrets.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	} else if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.AdminJWTSecret == "" {
		errs = append(errs, errors.New("ADMIN_JWT_SECRET is not set"))
	} else if len(c.AdminJWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("ADMIN_JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.JWTSecret != "" && c.JWTSecret == c.AdminJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET and ADMIN_JWT_SECRET must differ"))
	}
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFromFile(fileKey, envKey, defaultValue string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		if content, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(content))
		}
		slog.Warn("secret file not readable, falling back to env", "key", fileKey)
	}
	return getEnv(envKey, defaultValue)
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("invalid number in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}
