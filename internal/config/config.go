package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all runtime configuration, read from the environment and an optional .env file.
type Config struct {
	Env         string
	Port        string
	Store       string
	DatabaseURL string
	// DBLockTimeout bounds how long a checkout waits for product row locks.
	DBLockTimeout time.Duration
	CORSOrigins   []string

	HoldTTL             time.Duration
	SweepSchedule       string
	CheckoutMaxAttempts int
	CheckoutBackoff     time.Duration
	DeliveryFeeCents    int64

	Currency            string
	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	CheckoutSessionTTL  time.Duration

	JWTSecret string
	// AdminEmail and AdminPassword seed the first admin account at startup when both are set.
	AdminEmail    string
	AdminPassword string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		Store:               getEnv("STORE", StorePostgres),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		CORSOrigins:         parseCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		SweepSchedule:       getEnv("SWEEP_SCHEDULE", "@every 2m"),
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancelled"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		AdminEmail:          os.Getenv("ADMIN_EMAIL"),
		AdminPassword:       os.Getenv("ADMIN_PASSWORD"),
		SendGridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail:   os.Getenv("SENDGRID_FROM_EMAIL"),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "Event Rentals"),
		TwilioAccountSID:    os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:    os.Getenv("TWILIO_FROM_NUMBER"),
	}

	var err error
	if cfg.DBLockTimeout, err = getEnvDuration("DB_LOCK_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.HoldTTL, err = getEnvDuration("HOLD_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CheckoutBackoff, err = getEnvDuration("CHECKOUT_RETRY_BACKOFF", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.CheckoutSessionTTL, err = getEnvDuration("CHECKOUT_SESSION_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CheckoutMaxAttempts, err = getEnvInt("CHECKOUT_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	fee, err := getEnvInt("DELIVERY_FEE_CENTS", 7500)
	if err != nil {
		return nil, err
	}
	cfg.DeliveryFeeCents = int64(fee)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL not set")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET not set")
	}
	if c.CheckoutMaxAttempts < 1 {
		return fmt.Errorf("CHECKOUT_MAX_ATTEMPTS must be at least 1")
	}
	if c.HoldTTL <= 0 {
		return fmt.Errorf("HOLD_TTL must be positive")
	}
	if c.DeliveryFeeCents < 0 {
		return fmt.Errorf("DELIVERY_FEE_CENTS must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
