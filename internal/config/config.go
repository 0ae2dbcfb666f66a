package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	CORSAllowedOrigins []string

	// Currency defaults used to seed the registry at boot.
	CurrencyCode   string
	CurrencySymbol string
	CurrencyLocale string

	// Order numbering.
	OrderNumberOffset int64

	// Payment gateway.
	MollieAPIKey   string
	MollieBaseURL  string
	WebhookBaseURL string

	// Aggregation job.
	AggregationInterval time.Duration

	// Feature toggles.
	SkipMigrations bool
	SkipRoutes     bool
	Debug          bool

	// Operational knobs.
	ReconcileLockTTL time.Duration
	IdempotencyTTL   time.Duration
	GatewayTimeout   time.Duration
	RateLimitPeriod  time.Duration
	RateLimitMax     int64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "backend-billing"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CurrencyCode:   valueOrDefault(k.String("BILLING_CURRENCY"), "eur"),
		CurrencySymbol: strings.TrimSpace(k.String("BILLING_CURRENCY_SYMBOL")),
		CurrencyLocale: valueOrDefault(k.String("BILLING_CURRENCY_LOCALE"), "en"),

		OrderNumberOffset: parseInt64(k.String("BILLING_ORDER_NUMBER_OFFSET"), 0),

		MollieAPIKey:   k.String("MOLLIE_API_KEY"),
		MollieBaseURL:  valueOrDefault(k.String("MOLLIE_BASE_URL"), "https://api.mollie.com"),
		WebhookBaseURL: strings.TrimRight(k.String("BILLING_WEBHOOK_BASE_URL"), "/"),

		AggregationInterval: parseDuration(k.String("BILLING_AGGREGATION_INTERVAL"), "1m"),

		SkipMigrations: parseBool(k.String("BILLING_SKIP_MIGRATIONS")),
		SkipRoutes:     parseBool(k.String("BILLING_SKIP_ROUTES")),
		Debug:          parseBool(k.String("BILLING_DEBUG")),

		ReconcileLockTTL: parseDuration(k.String("BILLING_RECONCILE_LOCK_TTL"), "30s"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		GatewayTimeout:   parseDuration(k.String("GATEWAY_TIMEOUT"), "10s"),
		RateLimitPeriod:  parseDuration(k.String("RATE_LIMIT_PERIOD"), "1m"),
		RateLimitMax:     parseInt64(k.String("RATE_LIMIT_MAX"), 120),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.OrderNumberOffset < 0 {
		return nil, errors.New("BILLING_ORDER_NUMBER_OFFSET must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsDevelopment reports whether the app runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "development")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt64(value string, fallback int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
