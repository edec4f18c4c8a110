// Package config loads process configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

type ChannelCredentials struct {
	MerchantNo string
	AppID      string
	Secret     string
	Endpoint   string
}

type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string

	DatabaseDSN string

	SnowflakeNode int64

	// Payment window before an unpaid order expires.
	OrderTTL time.Duration

	// Reconcile worker cadence and claim size.
	ReconcileInterval time.Duration
	ReconcileBatch    int

	ChannelTimeout time.Duration

	Wechat ChannelCredentials
	Alipay ChannelCredentials
	Paypal ChannelCredentials
	Boost  ChannelCredentials
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:               getenv("APP_ENV", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		DatabaseDSN:       os.Getenv("DATABASE_DSN"),
		SnowflakeNode:     getint64("SNOWFLAKE_NODE", 1),
		OrderTTL:          getduration("ORDER_TTL", 30*time.Minute),
		ReconcileInterval: getduration("RECONCILE_INTERVAL", time.Minute),
		ReconcileBatch:    int(getint64("RECONCILE_BATCH", 50)),
		ChannelTimeout:    getduration("CHANNEL_TIMEOUT", 10*time.Second),
		Wechat:            channel("WECHAT"),
		Alipay:            channel("ALIPAY"),
		Paypal:            channel("PAYPAL"),
		Boost:             channel("BOOST"),
	}
	return cfg, nil
}

func channel(prefix string) ChannelCredentials {
	return ChannelCredentials{
		MerchantNo: os.Getenv(prefix + "_MERCHANT_NO"),
		AppID:      os.Getenv(prefix + "_APP_ID"),
		Secret:     os.Getenv(prefix + "_SECRET"),
		Endpoint:   os.Getenv(prefix + "_ENDPOINT"),
	}
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getint64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getduration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

var Module = fx.Module("config", fx.Provide(Load))
