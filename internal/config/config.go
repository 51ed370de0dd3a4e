package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Processor ProcessorConfig
	Webhook   WebhookConfig
	Return    ReturnConfig
	Auth      AuthConfig
	Ledger    LedgerConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	PaymentCompleted string
	PaymentFailed    string
	PaymentPending   string
}

// ProcessorConfig holds the TailoredPay transact API credentials. The
// security key authenticates server-side charges; the tokenization key is
// the public key handed to the hosted card-entry widget.
type ProcessorConfig struct {
	Environment     string
	Endpoint        string
	SecurityKey     string
	TokenizationKey string
	Timeout         time.Duration
}

type WebhookConfig struct {
	SigningSecret string
}

type ReturnConfig struct {
	Secret  string
	BaseURL string
}

type AuthConfig struct {
	OIDCIssuer    string
	SessionSecret string
	SessionTTL    time.Duration
}

// LedgerConfig selects the idempotency ledger backend: "postgres" or "redis".
// TTL applies to the redis backend only; postgres records are kept forever.
type LedgerConfig struct {
	Backend string
	TTL     time.Duration
}

func Load() *Config {
	environment := getEnv("TAILOREDPAY_ENVIRONMENT", "test")

	securityKey := getEnv("TAILOREDPAY_TEST_SECURITY_KEY", "")
	tokenizationKey := getEnv("TAILOREDPAY_TEST_TOKENIZATION_KEY", "")
	if environment == "live" {
		securityKey = getEnv("TAILOREDPAY_LIVE_SECURITY_KEY", "")
		tokenizationKey = getEnv("TAILOREDPAY_LIVE_TOKENIZATION_KEY", "")
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "gateway_user"),
			Password:     getEnv("DB_PASSWORD", "gateway_pass"),
			Database:     getEnv("DB_NAME", "payment_gateway"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				PaymentCompleted: getEnv("KAFKA_TOPIC_COMPLETED", "payment.completed"),
				PaymentFailed:    getEnv("KAFKA_TOPIC_FAILED", "payment.failed"),
				PaymentPending:   getEnv("KAFKA_TOPIC_PENDING", "payment.pending"),
			},
		},
		Processor: ProcessorConfig{
			Environment:     environment,
			Endpoint:        getEnv("TAILOREDPAY_ENDPOINT", "https://tailoredpay.transactiongateway.com/api/transact.php"),
			SecurityKey:     securityKey,
			TokenizationKey: tokenizationKey,
			Timeout:         time.Duration(getEnvInt("TAILOREDPAY_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Webhook: WebhookConfig{
			SigningSecret: getEnv("WEBHOOK_SIGNING_SECRET", ""),
		},
		Return: ReturnConfig{
			Secret:  getEnv("RETURN_TOKEN_SECRET", ""),
			BaseURL: getEnv("RETURN_BASE_URL", "http://localhost:8080/return"),
		},
		Auth: AuthConfig{
			OIDCIssuer:    getEnv("OIDC_ISSUER", ""),
			SessionSecret: getEnv("PAYMENT_SESSION_SECRET", ""),
			SessionTTL:    time.Duration(getEnvInt("PAYMENT_SESSION_TTL_MINUTES", 30)) * time.Minute,
		},
		Ledger: LedgerConfig{
			Backend: getEnv("LEDGER_BACKEND", "postgres"),
			TTL:     time.Duration(getEnvInt("LEDGER_TTL_HOURS", 24*30)) * time.Hour,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
