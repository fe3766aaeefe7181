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
	JWTAudience        string
	AuthCookieName     string
	CORSAllowedOrigins []string
	DBAutoMigrate      bool

	RateLimitPerMinute     int
	SaleRateLimitPerMinute int
	BodyLimitBytes         int64
	AuditEnabled           bool
	SecurityHeadersHSTS    bool

	// TaxRateBps is the sales tax applied after coupon discount, in basis points.
	TaxRateBps     int64
	CurrencyCode   string
	InvoicePrefix  string
	IdempotencyTTL time.Duration

	CatalogCacheTTL    time.Duration
	ReportCacheTTL     time.Duration
	NotSellingDays     int
	TopProductsLimit   int
	LowStockAlertTopic string

	WorkerConcurrency   int
	StockVerifyInterval time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:                 valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                   valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:            k.String("DATABASE_URL"),
		RedisURL:               k.String("REDIS_URL"),
		JWTSecret:              k.String("JWT_SECRET"),
		JWTIssuer:              strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:            strings.TrimSpace(k.String("JWT_AUDIENCE")),
		AuthCookieName:         strings.TrimSpace(k.String("AUTH_COOKIE_NAME")),
		CORSAllowedOrigins:     splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		DBAutoMigrate:          parseBool(k.String("DB_AUTO_MIGRATE")),
		RateLimitPerMinute:     parseInt(k.String("RATE_LIMIT_PER_MINUTE"), 600),
		SaleRateLimitPerMinute: parseInt(k.String("RATE_LIMIT_SALES_PER_MINUTE"), 60),
		BodyLimitBytes:         int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),
		AuditEnabled:           parseBool(valueOrDefault(k.String("AUDIT_ENABLED"), "true")),
		SecurityHeadersHSTS:    parseBool(k.String("SECURITY_HSTS")),
		TaxRateBps:             int64(parseInt(k.String("PRICING_TAX_RATE_BPS"), 1800)),
		CurrencyCode:           strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "INR")),
		InvoicePrefix:          valueOrDefault(k.String("INVOICE_PREFIX"), "INV"),
		IdempotencyTTL:         parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CatalogCacheTTL:        parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		ReportCacheTTL:         parseDuration(k.String("REPORT_CACHE_TTL"), "5m"),
		NotSellingDays:         parseInt(k.String("REPORT_NOT_SELLING_DAYS"), 30),
		TopProductsLimit:       parseInt(k.String("REPORT_TOP_PRODUCTS"), 10),
		LowStockAlertTopic:     valueOrDefault(k.String("LOW_STOCK_ALERT_QUEUE"), "alerts"),
		WorkerConcurrency:      parseInt(k.String("WORKER_CONCURRENCY"), 5),
		StockVerifyInterval:    parseDuration(k.String("STOCK_VERIFY_INTERVAL"), "1h"),
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
	if cfg.TaxRateBps < 0 || cfg.TaxRateBps > 10000 {
		return nil, fmt.Errorf("PRICING_TAX_RATE_BPS must be between 0 and 10000, got %d", cfg.TaxRateBps)
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
		return strings.TrimSpace(value)
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

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
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
