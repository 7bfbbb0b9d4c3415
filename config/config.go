package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farellandr/gatherly/internal/store"
	"github.com/farellandr/gatherly/internal/store/gormstore"
	"github.com/farellandr/gatherly/internal/store/mongostore"
)

type Config struct {
	Port     string
	GinMode  string
	LogLevel string
	// LogFormat is "json" or "console".
	LogFormat string

	Store  StoreConfig
	Auth   AuthConfig
	Stripe StripeConfig
	Upload UploadConfig
	Mail   MailConfig

	NatsURL   string
	RedisURL  string
	RateLimit RateLimitConfig

	// AppBaseURL is where the mobile client's deep links and the Stripe
	// redirect pages live.
	AppBaseURL string
}

type StoreConfig struct {
	Driver        string
	MongoURI      string
	MongoDatabase string
	Postgres      gormstore.PostgresConfig
	SQLitePath    string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type StripeConfig struct {
	SecretKey          string
	WebhookSecret      string
	Currency           string
	PlatformFeePercent int
}

type UploadConfig struct {
	Dir        string
	PublicPath string
}

type MailConfig struct {
	SendGridAPIKey string
	From           string
	FromName       string
}

type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:      GetEnvAsString("PORT", "8080"),
		GinMode:   GetEnvAsString("GIN_MODE", "release"),
		LogLevel:  GetEnvAsString("LOG_LEVEL", "info"),
		LogFormat: GetEnvAsString("LOG_FORMAT", "json"),
		Store: StoreConfig{
			Driver:        GetEnvAsString("STORE_DRIVER", "mongo"),
			MongoURI:      GetEnvAsString("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDatabase: GetEnvAsString("MONGODB_DATABASE", "gatherly"),
			Postgres: gormstore.PostgresConfig{
				Host:     GetEnvAsString("DB_HOST", "localhost"),
				Port:     GetEnvAsString("DB_PORT", "5432"),
				User:     GetEnvAsString("DB_USER", ""),
				Password: GetEnvAsString("DB_PASSWORD", ""),
				Name:     GetEnvAsString("DB_NAME", "gatherly"),
			},
			SQLitePath: GetEnvAsString("SQLITE_PATH", "gatherly.db"),
		},
		Auth: AuthConfig{
			JWTSecret: GetEnvAsString("JWT_SECRET", ""),
			TokenTTL:  GetEnvAsDuration("JWT_TTL", 24*time.Hour),
		},
		Stripe: StripeConfig{
			SecretKey:          GetEnvAsString("STRIPE_SECRET_KEY", ""),
			WebhookSecret:      GetEnvAsString("STRIPE_WEBHOOK_SECRET", ""),
			Currency:           GetEnvAsString("STRIPE_CURRENCY", "usd"),
			PlatformFeePercent: GetEnvAsInt("PLATFORM_FEE_PERCENT", 5),
		},
		Upload: UploadConfig{
			Dir:        GetEnvAsString("UPLOAD_DIR", "./uploads"),
			PublicPath: GetEnvAsString("PUBLIC_UPLOAD_PATH", "/uploads"),
		},
		Mail: MailConfig{
			SendGridAPIKey: GetEnvAsString("SENDGRID_API_KEY", ""),
			From:           GetEnvAsString("MAIL_FROM", "tickets@gatherly.app"),
			FromName:       GetEnvAsString("MAIL_FROM_NAME", "Gatherly"),
		},
		NatsURL:  GetEnvAsString("NATS_URL", ""),
		RedisURL: GetEnvAsString("REDIS_URL", ""),
		RateLimit: RateLimitConfig{
			Window:      GetEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			MaxRequests: GetEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 20),
		},
		AppBaseURL: GetEnvAsString("APP_BASE_URL", "http://localhost:8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Stripe.PlatformFeePercent < 0 || c.Stripe.PlatformFeePercent > 100 {
		return fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %d", c.Stripe.PlatformFeePercent)
	}
	if c.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be positive, got %d", c.RateLimit.MaxRequests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimit.Window)
	}
	return nil
}

func InitStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "mongo":
		return mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "postgres":
		return gormstore.OpenPostgres(cfg.Postgres)
	case "sqlite":
		return gormstore.OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Driver)
	}
}
