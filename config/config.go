package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	// Server configuration
	Port        string `env:"PORT" envDefault:"8090"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Store configuration
	StoreDriver     string `env:"STORE_DRIVER" envDefault:"redis"`
	RedisURL        string `env:"REDIS_URL" envDefault:"localhost:6379"`
	StoreMaxRetries int    `env:"STORE_MAX_RETRIES" envDefault:"50"`

	// Waiting list configuration
	OfferWindow        time.Duration `env:"OFFER_WINDOW" envDefault:"15m"`
	ExpiryPollInterval time.Duration `env:"EXPIRY_POLL_INTERVAL" envDefault:"1s"`

	// PubNub configuration
	PubNubPublishKey   string `env:"PUBNUB_PUBLISH_KEY"`
	PubNubSubscribeKey string `env:"PUBNUB_SUBSCRIBE_KEY"`
	PubNubSecretKey    string `env:"PUBNUB_SECRET_KEY"`
	PubNubUserID       string `env:"PUBNUB_USER_ID" envDefault:"ticket-engine"`

	// Broker configuration
	AMQPURL               string `env:"AMQP_URL"`
	PaymentConfirmedQueue string `env:"PAYMENT_CONFIRMED_QUEUE" envDefault:"payment.confirmed"`

	// Monitoring
	EnableMetrics   bool          `env:"ENABLE_METRICS" envDefault:"true"`
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"30s"`

	// Rate limiting for waiting list joins
	JoinRateLimit  int           `env:"JOIN_RATE_LIMIT" envDefault:"10"`
	JoinRateWindow time.Duration `env:"JOIN_RATE_WINDOW" envDefault:"1m"`
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.OfferWindow <= 0 {
		return fmt.Errorf("config: OFFER_WINDOW must be positive")
	}
	if c.StoreMaxRetries <= 0 {
		return fmt.Errorf("config: STORE_MAX_RETRIES must be positive")
	}
	return nil
}

func (c *Config) PubNubEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}
