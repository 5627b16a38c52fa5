// Package config loads the service settings from the environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds every setting main needs to wire the service.
type Config struct {
	AppPort string
	BaseURL string

	DatabaseDriver string
	DatabaseDSN    string

	// RabbitMQURL is optional; without it order events are not published.
	RabbitMQURL      string
	RabbitMQExchange string
	RabbitMQQueue    string

	CriptoYaURL    string
	CriptoYaMarket string
	RateFallback   decimal.Decimal
	RateRefresh    time.Duration

	MercadoPagoURL         string
	MercadoPagoAccessToken string
	MercadoPagoSandbox     bool
	Currency               string

	NotificationSecret   string
	NotificationTokenTTL time.Duration

	StoreTimezone *time.Location

	SessionMaxAge        time.Duration
	SessionPruneInterval time.Duration

	CompensationAttempts int
	CompensationBackoff  time.Duration

	HTTPTimeout time.Duration

	LogLevel  string
	LogFormat string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("DATABASE_DRIVER", DriverPostgres)
	v.SetDefault("RABBITMQ_EXCHANGE", "orders")
	v.SetDefault("RABBITMQ_QUEUE", "order_events")
	v.SetDefault("CRIPTOYA_URL", "https://criptoya.com/api/dolar")
	v.SetDefault("CRIPTOYA_MARKET", "cripto")
	v.SetDefault("RATE_FALLBACK", "1507.43")
	v.SetDefault("RATE_REFRESH", "5m")
	v.SetDefault("MERCADOPAGO_URL", "https://api.mercadopago.com")
	v.SetDefault("MERCADOPAGO_SANDBOX", false)
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("NOTIFICATION_TOKEN_TTL", "720h")
	v.SetDefault("STORE_TIMEZONE", "America/Argentina/Buenos_Aires")
	v.SetDefault("SESSION_MAX_AGE", "2h")
	v.SetDefault("SESSION_PRUNE_INTERVAL", "10m")
	v.SetDefault("COMPENSATION_ATTEMPTS", 3)
	v.SetDefault("COMPENSATION_BACKOFF", "100ms")
	v.SetDefault("HTTP_TIMEOUT", "10s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Load reads the configuration from environment variables and, when
// present, a config.yaml in the working directory. Values already set on v
// take precedence. Missing required keys are reported together.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		AppPort:                v.GetString("APP_PORT"),
		BaseURL:                strings.TrimRight(v.GetString("BASE_URL"), "/"),
		DatabaseDriver:         strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseDSN:            v.GetString("DATABASE_DSN"),
		RabbitMQURL:            v.GetString("RABBITMQ_URL"),
		RabbitMQExchange:       v.GetString("RABBITMQ_EXCHANGE"),
		RabbitMQQueue:          v.GetString("RABBITMQ_QUEUE"),
		CriptoYaURL:            v.GetString("CRIPTOYA_URL"),
		CriptoYaMarket:         v.GetString("CRIPTOYA_MARKET"),
		RateRefresh:            v.GetDuration("RATE_REFRESH"),
		MercadoPagoURL:         v.GetString("MERCADOPAGO_URL"),
		MercadoPagoAccessToken: v.GetString("MERCADOPAGO_ACCESS_TOKEN"),
		MercadoPagoSandbox:     v.GetBool("MERCADOPAGO_SANDBOX"),
		Currency:               strings.ToUpper(v.GetString("CURRENCY")),
		NotificationSecret:     v.GetString("NOTIFICATION_SECRET"),
		NotificationTokenTTL:   v.GetDuration("NOTIFICATION_TOKEN_TTL"),
		SessionMaxAge:          v.GetDuration("SESSION_MAX_AGE"),
		SessionPruneInterval:   v.GetDuration("SESSION_PRUNE_INTERVAL"),
		CompensationAttempts:   v.GetInt("COMPENSATION_ATTEMPTS"),
		CompensationBackoff:    v.GetDuration("COMPENSATION_BACKOFF"),
		HTTPTimeout:            v.GetDuration("HTTP_TIMEOUT"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		LogFormat:              v.GetString("LOG_FORMAT"),
	}

	var missing, invalid []string
	require := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
		}
	}
	require("BASE_URL", cfg.BaseURL)
	require("MERCADOPAGO_ACCESS_TOKEN", cfg.MercadoPagoAccessToken)
	require("NOTIFICATION_SECRET", cfg.NotificationSecret)

	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
		require("DATABASE_DSN", cfg.DatabaseDSN)
	case DriverMemory:
	default:
		invalid = append(invalid, fmt.Sprintf("DATABASE_DRIVER %q (want postgres, sqlite or memory)", cfg.DatabaseDriver))
	}

	fallback, err := decimal.NewFromString(v.GetString("RATE_FALLBACK"))
	if err != nil || !fallback.IsPositive() {
		invalid = append(invalid, fmt.Sprintf("RATE_FALLBACK %q (want a positive number)", v.GetString("RATE_FALLBACK")))
	}
	cfg.RateFallback = fallback

	loc, err := time.LoadLocation(v.GetString("STORE_TIMEZONE"))
	if err != nil {
		invalid = append(invalid, fmt.Sprintf("STORE_TIMEZONE %q", v.GetString("STORE_TIMEZONE")))
	}
	cfg.StoreTimezone = loc

	if cfg.RateRefresh <= 0 {
		invalid = append(invalid, "RATE_REFRESH (want a positive duration)")
	}
	if cfg.CompensationAttempts < 1 {
		invalid = append(invalid, "COMPENSATION_ATTEMPTS (want at least 1)")
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"SESSION_MAX_AGE", cfg.SessionMaxAge},
		{"SESSION_PRUNE_INTERVAL", cfg.SessionPruneInterval},
		{"NOTIFICATION_TOKEN_TTL", cfg.NotificationTokenTTL},
		{"HTTP_TIMEOUT", cfg.HTTPTimeout},
	} {
		if d.value <= 0 {
			invalid = append(invalid, d.key+" (want a positive duration)")
		}
	}
	if cfg.CompensationBackoff < 0 {
		invalid = append(invalid, "COMPENSATION_BACKOFF (want zero or a positive duration)")
	}

	if len(missing) > 0 || len(invalid) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing required settings: "+strings.Join(missing, ", "))
		}
		if len(invalid) > 0 {
			parts = append(parts, "invalid settings: "+strings.Join(invalid, "; "))
		}
		return nil, errors.New(strings.Join(parts, "; "))
	}
	return cfg, nil
}
