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

// GatewayConfig holds everything the mobile-money gateway client needs.
// It is built once at process start and passed to services.NewMpesaClient.
type GatewayConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string

	// Collection (STK push)
	ShortCode        string
	PassKey          string
	CallbackURL      string
	AccountReference string

	// Payouts (B2C / B2B)
	PayoutShortCode   string
	InitiatorName     string
	InitiatorPassword string
	CertificatePath   string
	B2CResultURL      string
	B2CTimeoutURL     string
	B2BResultURL      string
	B2BTimeoutURL     string

	Timeout time.Duration
}

// Config is the process configuration.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	LogLevel    string

	// CallbackToken, when set, must be present as ?token= on gateway webhooks.
	CallbackToken string

	DirectoryCacheTTL time.Duration
	WorkerInterval    time.Duration
	SweepGracePeriod  time.Duration
	SweepRecurrence   string

	Gateway GatewayConfig
}

// Load reads a .env file if one exists and then builds the Config from the
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using system environment")
	}
	return FromEnv()
}

// FromEnv builds the Config from the current environment only.
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		CallbackToken: os.Getenv("CALLBACK_TOKEN"),

		DirectoryCacheTTL: getDuration("DIRECTORY_CACHE_TTL", 5*time.Minute, &errs),
		WorkerInterval:    getDuration("WORKER_INTERVAL", 5*time.Minute, &errs),
		SweepGracePeriod:  getDuration("SWEEP_GRACE_PERIOD", 15*time.Minute, &errs),
		SweepRecurrence:   getEnv("SWEEP_RRULE", "FREQ=MINUTELY;INTERVAL=30"),

		Gateway: GatewayConfig{
			BaseURL:        strings.TrimRight(getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"), "/"),
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),

			ShortCode:        os.Getenv("MPESA_SHORTCODE"),
			PassKey:          os.Getenv("MPESA_PASSKEY"),
			CallbackURL:      os.Getenv("MPESA_CALLBACK_URL"),
			AccountReference: getEnv("MPESA_ACCOUNT_REFERENCE", "Zidallie"),

			PayoutShortCode:   os.Getenv("MPESA_PAYOUT_SHORTCODE"),
			InitiatorName:     os.Getenv("MPESA_INITIATOR_NAME"),
			InitiatorPassword: os.Getenv("MPESA_INITIATOR_PASSWORD"),
			CertificatePath:   os.Getenv("MPESA_CERTIFICATE_PATH"),
			B2CResultURL:      os.Getenv("MPESA_B2C_RESULT_URL"),
			B2CTimeoutURL:     os.Getenv("MPESA_B2C_TIMEOUT_URL"),
			B2BResultURL:      os.Getenv("MPESA_B2B_RESULT_URL"),
			B2BTimeoutURL:     os.Getenv("MPESA_B2B_TIMEOUT_URL"),

			Timeout: getDuration("MPESA_TIMEOUT", 30*time.Second, &errs),
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate reports the settings the server cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	missing = append(missing, c.Gateway.missing()...)
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (g GatewayConfig) missing() []string {
	required := []struct {
		key, value string
	}{
		{"MPESA_CONSUMER_KEY", g.ConsumerKey},
		{"MPESA_CONSUMER_SECRET", g.ConsumerSecret},
		{"MPESA_SHORTCODE", g.ShortCode},
		{"MPESA_PASSKEY", g.PassKey},
		{"MPESA_CALLBACK_URL", g.CallbackURL},
	}
	var out []string
	for _, r := range required {
		if r.value == "" {
			out = append(out, r.key)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// bare integers are seconds
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	*errs = append(*errs, fmt.Errorf("invalid duration for %s: %q", key, raw))
	return fallback
}
