package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
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
	DBRunMigrations   bool

	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Payment      PaymentConfig
	Identity     IdentityConfig
	SMTP         SMTPConfig
	Subscription SubscriptionConfig
	Scheduler    SchedulerConfig
	Alert        AlertConfig
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	RolesClaim  string
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PaymentInitiateRate  float64
	PaymentInitiateBurst int
	UsageUpdateRate      float64
	UsageUpdateBurst     int
}

type PaymentConfig struct {
	Provider                string
	BaseURL                 string
	APIKey                  string
	HMACSecret              string
	IntegrationID           int64
	IframeID                string
	Currency                string
	Timeout                 time.Duration
	RequireWebhookSignature bool
}

type IdentityConfig struct {
	Domain          string
	ManagementToken string
	Timeout         time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SubscriptionConfig struct {
	ActivationWindow time.Duration
}

type AlertConfig struct {
	SlackWebhookURL string
	SlackChannel    string
	Timeout         time.Duration
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "mediavault"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  environment,
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "mediavault"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBRunMigrations:   getenvBool("DATABASE_RUN_MIGRATIONS", true),

		Auth: AuthConfig{
			JWTSecret:   strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			JWTIssuer:   strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
			JWTAudience: strings.TrimSpace(getenv("AUTH_JWT_AUDIENCE", "")),
			RolesClaim:  strings.TrimSpace(getenv("AUTH_ROLES_CLAIM", "roles")),
		},
		RateLimit: RateLimitConfig{
			Enabled:              getenvBool("RATE_LIMIT_ENABLED", true),
			RedisAddr:            strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword:        strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:              getenvInt("REDIS_DB", 0),
			PaymentInitiateRate:  getenvFloat("RATE_LIMIT_PAYMENT_INITIATE_RATE", 0.2),
			PaymentInitiateBurst: getenvInt("RATE_LIMIT_PAYMENT_INITIATE_BURST", 5),
			UsageUpdateRate:      getenvFloat("RATE_LIMIT_USAGE_UPDATE_RATE", 5),
			UsageUpdateBurst:     getenvInt("RATE_LIMIT_USAGE_UPDATE_BURST", 20),
		},
		Payment: PaymentConfig{
			Provider:                strings.ToLower(strings.TrimSpace(getenv("PAYMENT_PROVIDER", "paymob"))),
			BaseURL:                 strings.TrimRight(getenv("PAYMENT_BASE_URL", "https://accept.paymob.com"), "/"),
			APIKey:                  strings.TrimSpace(getenv("PAYMENT_API_KEY", "")),
			HMACSecret:              strings.TrimSpace(getenv("PAYMENT_HMAC_SECRET", "")),
			IntegrationID:           getenvInt64("PAYMENT_INTEGRATION_ID", 0),
			IframeID:                strings.TrimSpace(getenv("PAYMENT_IFRAME_ID", "")),
			Currency:                strings.ToUpper(getenv("PAYMENT_CURRENCY", "EGP")),
			Timeout:                 getenvDuration("PAYMENT_PROVIDER_TIMEOUT", 10*time.Second),
			RequireWebhookSignature: getenvBool("PAYMENT_WEBHOOK_REQUIRE_SIGNATURE", true),
		},
		Identity: IdentityConfig{
			Domain:          strings.TrimRight(strings.TrimSpace(getenv("IDENTITY_DOMAIN", "")), "/"),
			ManagementToken: strings.TrimSpace(getenv("IDENTITY_MANAGEMENT_TOKEN", "")),
			Timeout:         getenvDuration("IDENTITY_TIMEOUT", 5*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     strings.TrimSpace(getenv("SMTP_FROM", "MediaVault <no-reply@mediavault.local>")),
		},
		Subscription: SubscriptionConfig{
			ActivationWindow: getenvDuration("SUBSCRIPTION_ACTIVATION_WINDOW", 10*time.Minute),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			BatchSize:   getenvInt("SCHEDULER_BATCH_SIZE", 100),
			JobTimeout:  getenvDuration("SCHEDULER_JOB_TIMEOUT", 30*time.Second),
		},
		Alert: AlertConfig{
			SlackWebhookURL: strings.TrimSpace(getenv("ALERT_SLACK_WEBHOOK_URL", "")),
			SlackChannel:    strings.TrimSpace(getenv("ALERT_SLACK_CHANNEL", "#billing-alerts")),
			Timeout:         getenvDuration("ALERT_TIMEOUT", 5*time.Second),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go durations ("15s") or bare seconds ("15").
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return def
}
