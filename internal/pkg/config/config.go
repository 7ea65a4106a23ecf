// Package config loads the store-api settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Database captures the connection parameters for the order store.
type Database struct {
	Driver   string
	Path     string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	Params   string
}

// Gateway holds the shared secret and hosted checkout page of one payment gateway.
type Gateway struct {
	Secret      string
	CheckoutURL string
}

// Config is the full process configuration.
type Config struct {
	HTTPAddr        string
	ServiceName     string
	Environment     string
	LogLevel        slog.Level
	TracingEnabled  bool
	OTLPEndpoint    string
	Database        Database
	RedisAddr       string
	AMQPURL         string
	CardPay         Gateway
	WalletPay       Gateway
	AmountTolerance decimal.Decimal
	TxMaxAttempts   int
	IdempotencyTTL  time.Duration
}

// FromEnv populates a Config using defaults that can be overridden via environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "store-api"),
		Environment:  getEnv("OTEL_RESOURCE_ATTRIBUTES_ENV", "local"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Database: Database{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Path:     getEnv("SQLITE_PATH", "./data/store.db"),
			User:     getEnv("MYSQL_USER", "store"),
			Password: getEnv("MYSQL_PASSWORD", "store"),
			Host:     getEnv("MYSQL_HOST", "127.0.0.1"),
			Port:     getEnv("MYSQL_PORT", "3306"),
			Name:     getEnv("MYSQL_DATABASE", "storefront"),
			Params:   getEnv("MYSQL_PARAMS", "charset=utf8mb4&parseTime=True&loc=UTC"),
		},
		RedisAddr: os.Getenv("REDIS_ADDR"),
		AMQPURL:   os.Getenv("AMQP_URL"),
		CardPay: Gateway{
			Secret:      getEnv("CARDPAY_SECRET", "cardpay-dev-secret"),
			CheckoutURL: getEnv("CARDPAY_CHECKOUT_URL", "https://pay.cardpay.test/checkout"),
		},
		WalletPay: Gateway{
			Secret:      getEnv("WALLETPAY_SECRET", "walletpay-dev-secret"),
			CheckoutURL: getEnv("WALLETPAY_CHECKOUT_URL", "https://wallet.walletpay.test/pay"),
		},
	}

	var err error
	level := getEnv("LOG_LEVEL", "info")
	if err = cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
		return Config{}, fmt.Errorf("config: LOG_LEVEL %q: %w", level, err)
	}
	if cfg.TracingEnabled, err = getEnvBool("TRACING_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.TxMaxAttempts, err = getEnvInt("TX_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.TxMaxAttempts < 1 {
		return Config{}, fmt.Errorf("config: TX_MAX_ATTEMPTS must be at least 1, got %d", cfg.TxMaxAttempts)
	}
	if cfg.IdempotencyTTL, err = getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}

	tolerance := getEnv("PAYMENT_AMOUNT_TOLERANCE", "0.01")
	cfg.AmountTolerance, err = decimal.NewFromString(tolerance)
	if err != nil {
		return Config{}, fmt.Errorf("config: PAYMENT_AMOUNT_TOLERANCE %q: %w", tolerance, err)
	}
	if cfg.AmountTolerance.IsNegative() {
		return Config{}, fmt.Errorf("config: PAYMENT_AMOUNT_TOLERANCE must not be negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s %q: %w", key, raw, err)
	}
	return v, nil
}
