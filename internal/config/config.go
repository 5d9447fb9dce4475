package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port          int      `env:"PORT" envDefault:"4001"`
	JWTSecret     string   `env:"JWT_SECRET,required"`
	DatabaseURL   string   `env:"DATABASE_URL,required"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	AdminEmail    string   `env:"ADMIN_EMAIL" envDefault:"admin@logicaltax.local"`
	AdminPassword string   `env:"ADMIN_PASSWORD"`
	// PublicURL is the browser-facing origin used in checkout redirects.
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:3000"`

	StripeSecretKey     string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET"`
	StripePriceID       string        `env:"STRIPE_PRICE_ID"`
	ProviderTimeout     time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"5s"`

	// AccessCheckDisabled grants every signed-in user access. Never enable in production.
	AccessCheckDisabled bool `env:"ACCESS_CHECK_DISABLED" envDefault:"false"`

	RedisURL string        `env:"REDIS_URL"`
	LockTTL  time.Duration `env:"LOCK_TTL" envDefault:"15s"`

	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"15m"`
	PollStaleAfter time.Duration `env:"POLL_STALE_AFTER" envDefault:"24h"`
	PollBatchSize  int           `env:"POLL_BATCH_SIZE" envDefault:"50"`

	// MetricsAddr is the internal listener for /metrics; empty disables it.
	MetricsAddr string `env:"METRICS_ADDR" envDefault:"127.0.0.1:9091"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// StripeEnabled reports whether a real payment provider is configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != ""
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(&cfg)
}

// LoadFrom parses configuration from the given variables only.
func LoadFrom(vars map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.StripeEnabled() {
		if c.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set"))
		}
		if c.StripePriceID == "" {
			errs = append(errs, errors.New("STRIPE_PRICE_ID is required when STRIPE_SECRET_KEY is set"))
		}
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if c.PollInterval < 0 || c.PollStaleAfter < 0 {
		errs = append(errs, errors.New("POLL_INTERVAL and POLL_STALE_AFTER must not be negative"))
	}
	if c.PollBatchSize <= 0 {
		errs = append(errs, errors.New("POLL_BATCH_SIZE must be positive"))
	}
	return errors.Join(errs...)
}
