package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Auth     AuthConfig
	Stripe   StripeConfig
	Email    EmailConfig
	Library  LibraryConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	// URL empty means run on the in-memory repositories (dev/test mode).
	URL         string
	MaxConns    int
	MinConns    int
	MaxLifetime time.Duration
}

type RedisConfig struct {
	// URL empty disables redis-backed rate limiting and idempotency.
	URL      string
	Password string
	DB       int
}

type NATSConfig struct {
	// URL empty swaps in the no-op event bus.
	URL string
}

type AuthConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
}

type StripeConfig struct {
	SecretKey   string
	Environment string // sandbox or live
}

type EmailConfig struct {
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPass      string
	SMTPFrom      string
	SMTPFromName  string
	SMTPUseTLS    bool
	MailerSendKey string
	DevMode       bool // print emails to logs instead of sending
}

type LibraryConfig struct {
	Name                 string
	DailyFineRate        float64
	OverdueScanInterval  time.Duration
	SessionRateLimit     int
	SessionRateLimitWindow time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 5*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			MaxConns:    getInt("DB_MAX_CONNS", 10),
			MinConns:    getInt("DB_MIN_CONNS", 1),
			MaxLifetime: getDuration("DB_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", "dev-only-secret-change-in-prod"),
			SessionTTL: getDuration("SESSION_TTL", 8*time.Hour),
		},
		Stripe: StripeConfig{
			SecretKey:   getEnv("STRIPE_SECRET_KEY", ""),
			Environment: getEnv("STRIPE_ENV", "sandbox"),
		},
		Email: EmailConfig{
			SMTPHost:      getEnv("SMTP_HOST", "localhost"),
			SMTPPort:      getInt("SMTP_PORT", 1025),
			SMTPUser:      getEnv("SMTP_USER", ""),
			SMTPPass:      getEnv("SMTP_PASS", ""),
			SMTPFrom:      getEnv("SMTP_FROM", "noreply@libris.local"),
			SMTPFromName:  getEnv("SMTP_FROM_NAME", "Libris"),
			SMTPUseTLS:    getBool("SMTP_USE_TLS", false),
			MailerSendKey: getEnv("MAILERSEND_API_KEY", ""),
			DevMode:       getBool("EMAIL_DEV_MODE", true),
		},
		Library: LibraryConfig{
			Name:                 getEnv("LIBRARY_NAME", "City Library"),
			DailyFineRate:        getFloat("DAILY_FINE_RATE", 0.50),
			OverdueScanInterval:  getDuration("OVERDUE_SCAN_INTERVAL", time.Hour),
			SessionRateLimit:     getInt("SESSION_RATE_LIMIT", 10),
			SessionRateLimitWindow: getDuration("SESSION_RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
