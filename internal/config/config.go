package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMetricsEnabled  bool

	Stripe StripeConfig
}

// StripeConfig holds the payment provider credentials and platform settings.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string

	// PlatformFeeBPS is the platform's cut of each checkout, in basis points.
	PlatformFeeBPS int64

	OnboardingReturnURL  string
	OnboardingRefreshURL string
	CheckoutSuccessURL   string
	CheckoutCancelURL    string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "mercato"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "mercato"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),
		DBMetricsEnabled:  getenvBool("DATABASE_METRICS_ENABLED", false),

		Stripe: StripeConfig{
			SecretKey:            strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:        strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			PlatformFeeBPS:       int64(getenvInt("PLATFORM_FEE_BPS", 1000)),
			OnboardingReturnURL:  getenv("ONBOARDING_RETURN_URL", "http://localhost:3000/onboarding/complete"),
			OnboardingRefreshURL: getenv("ONBOARDING_REFRESH_URL", "http://localhost:3000/onboarding/refresh"),
			CheckoutSuccessURL:   getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
			CheckoutCancelURL:    getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
		},
	}
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
