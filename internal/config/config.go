package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCatalogHolder),
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	AuthJWTSecret string
	NodeID        int64

	OTLPEndpoint string
	Telemetry    TelemetryConfig

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

	Square        SquareConfig
	RateLimit     RateLimitConfig
	PaymentReplay PaymentReplayConfig

	CatalogPath string
}

// TelemetryConfig carries the logging and OpenTelemetry switches.
type TelemetryConfig struct {
	DeploymentEnv  string
	ServiceVersion string
	LogLevel       string
	LogFormat      string
	LogSQLParams   bool

	OtelEnabled    bool
	OtelProtocol   string
	OtelSampleRate float64
}

type SquareConfig struct {
	AccessToken         string
	Environment         string
	LocationID          string
	APIVersion          string
	WebhookSignatureKey string
	WebhookURL          string
	RedirectURL         string
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CheckoutRate  float64
	CheckoutBurst int

	WebhookLockTTLSeconds int
}

// PaymentReplayConfig controls the startup sweep over webhook deliveries that never finished processing.
type PaymentReplayConfig struct {
	OnStart   bool
	BatchSize int
}

const (
	SquareSandbox    = "sandbox"
	SquareProduction = "production"
)

// Load loads configuration from environment variables and .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	squareEnv, err := normalizeSquareEnvironment(getenv("SQUARE_ENVIRONMENT", SquareSandbox))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "loadpass"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		NodeID:        getenvInt64("SNOWFLAKE_NODE_ID", 1),
		OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Telemetry:     loadTelemetry(),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Square: SquareConfig{
			AccessToken:         strings.TrimSpace(getenv("SQUARE_ACCESS_TOKEN", "")),
			Environment:         squareEnv,
			LocationID:          strings.TrimSpace(getenv("SQUARE_LOCATION_ID", "")),
			APIVersion:          strings.TrimSpace(getenv("SQUARE_API_VERSION", "2024-01-18")),
			WebhookSignatureKey: strings.TrimSpace(getenv("SQUARE_WEBHOOK_SIGNATURE_KEY", "")),
			WebhookURL:          strings.TrimSpace(getenv("SQUARE_WEBHOOK_URL", "")),
			RedirectURL:         strings.TrimSpace(getenv("SQUARE_REDIRECT_URL", "")),
		},

		RateLimit: RateLimitConfig{
			Enabled:               getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:             strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379")),
			RedisPassword:         getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:               getenvInt("RATE_LIMIT_REDIS_DB", 0),
			CheckoutRate:          getenvFloat("RATE_LIMIT_CHECKOUT_RATE", 0.2),
			CheckoutBurst:         getenvInt("RATE_LIMIT_CHECKOUT_BURST", 3),
			WebhookLockTTLSeconds: getenvInt("RATE_LIMIT_WEBHOOK_LOCK_TTL_SECONDS", 30),
		},

		PaymentReplay: PaymentReplayConfig{
			OnStart:   getenvBool("PAYMENT_REPLAY_ON_START", true),
			BatchSize: getenvInt("PAYMENT_REPLAY_BATCH_SIZE", 50),
		},

		CatalogPath: strings.TrimSpace(getenv("CATALOG_PATH", "")),
	}

	return cfg, nil
}

func loadTelemetry() TelemetryConfig {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return TelemetryConfig{
		DeploymentEnv:  strings.TrimSpace(os.Getenv("DEPLOYMENT_ENV")),
		ServiceVersion: strings.TrimSpace(os.Getenv("SERVICE_VERSION")),
		LogLevel:       strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:      strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		LogSQLParams:   getenvBool("LOG_SQL_PARAMS", false),
		OtelEnabled:    getenvBool("OTEL_ENABLED", false),
		OtelProtocol:   strings.ToLower(strings.TrimSpace(protocol)),
		OtelSampleRate: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// BaseURL returns the Square Connect host for the configured environment.
func (c SquareConfig) BaseURL() string {
	if c.Environment == SquareProduction {
		return "https://connect.squareup.com"
	}
	return "https://connect.squareupsandbox.com"
}

func normalizeSquareEnvironment(raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case SquareProduction:
		return SquareProduction, nil
	case SquareSandbox, "":
		return SquareSandbox, nil
	default:
		return "", fmt.Errorf("unsupported SQUARE_ENVIRONMENT %q", raw)
	}
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
	return int(getenvInt64(key, int64(def)))
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
