package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// TokenSigningKey signs and verifies the HS256 bearer tokens used on
	// both the REST and websocket surfaces.
	TokenSigningKey string        `env:"TOKEN_SIGNING_KEY"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" default:"24h"`

	// BroadcastMaxInFlight caps concurrent deliveries during one broadcast
	// fan-out. Zero or negative values are rejected at startup.
	BroadcastMaxInFlight int `env:"BROADCAST_MAX_IN_FLIGHT" default:"5"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int `env:"MAX_CONNECTIONS_PER_IP" default:"20"`

	// ConnectionRatePerIP is the sustained new-connection rate allowed per
	// client IP; ConnectionBurstPerIP the short-term burst on top of it.
	ConnectionRatePerIP  float64 `env:"CONNECTION_RATE_PER_IP" default:"5"`
	ConnectionBurstPerIP int     `env:"CONNECTION_BURST_PER_IP" default:"10"`

	// PresenceConsumerBatchSize bounds how many queued status change events
	// one consumer read drains at a time.
	PresenceConsumerBatchSize int           `env:"PRESENCE_CONSUMER_BATCH_SIZE" default:"32"`
	PresenceConsumerBlock     time.Duration `env:"PRESENCE_CONSUMER_BLOCK" default:"5s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":      cfg.DatabaseURL,
		"REDIS_URL":         cfg.RedisURL,
		"TOKEN_SIGNING_KEY": cfg.TokenSigningKey,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.TokenSigningKey) < 32 {
		return errors.New("TOKEN_SIGNING_KEY must be at least 32 characters")
	}

	if cfg.BroadcastMaxInFlight < 1 {
		return fmt.Errorf("BROADCAST_MAX_IN_FLIGHT must be at least 1, got %d", cfg.BroadcastMaxInFlight)
	}

	if cfg.MaxWebSocketConnections < 1 {
		return fmt.Errorf("MAX_WEBSOCKET_CONNECTIONS must be at least 1, got %d", cfg.MaxWebSocketConnections)
	}

	if cfg.PresenceConsumerBatchSize < 1 {
		return fmt.Errorf("PRESENCE_CONSUMER_BATCH_SIZE must be at least 1, got %d", cfg.PresenceConsumerBatchSize)
	}

	if cfg.AppEnv == "production" {
		if err := validateProductionSSL(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	return nil
}

func validateProductionSSL(databaseURL string) error {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	sslmode := strings.ToLower(parsed.Query().Get("sslmode"))
	if sslmode == "disable" || sslmode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", sslmode)
	}

	return nil
}
