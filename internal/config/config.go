package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/bananabot/pricing/internal/secrets"
)

type Config struct {
	Addr        string
	LogLevel    string
	RedisURL    string
	DatabaseURL string

	CacheTTL     time.Duration
	CreditPrice  float64
	RateLimitRPM int

	OTLPEndpoint string

	AWSRegion        string
	QuoteQueueURL    string
	AlertTopicArn    string
	AlertWebhookURL  string
	SecretNamePrefix string

	EncryptionKey     string
	AdminAuthEnabled  bool
	AdminUsername     string
	AdminPasswordHash string

	SpendWarningThreshold  float64
	SpendCriticalThreshold float64

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:        getEnv("ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		RedisURL:    getEnv("REDIS_URL", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		CacheTTL:     getDurationEnv("CACHE_TTL", 30*time.Second),
		CreditPrice:  getFloatEnv("CREDIT_PRICE_USD", 0.01),
		RateLimitRPM: getIntEnv("RATE_LIMIT_RPM", 60),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),

		AWSRegion:        getEnv("AWS_REGION", ""),
		QuoteQueueURL:    getEnv("QUOTE_QUEUE_URL", ""),
		AlertTopicArn:    getEnv("ALERT_TOPIC_ARN", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
		SecretNamePrefix: getEnv("SECRET_NAME_PREFIX", ""),

		EncryptionKey:     getEnv("ENCRYPTION_KEY", ""),
		AdminAuthEnabled:  getEnv("ADMIN_AUTH_ENABLED", "false") == "true",
		AdminUsername:     getEnv("ADMIN_USERNAME", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		SpendWarningThreshold:  getFloatEnv("SPEND_WARNING_THRESHOLD", 0.8),
		SpendCriticalThreshold: getFloatEnv("SPEND_CRITICAL_THRESHOLD", 0.95),

		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

// ResolveSecrets overwrites config values with secrets from the store when
// a secret name prefix is configured. Env values act as the fallback.
func (c *Config) ResolveSecrets(ctx context.Context, store secrets.SecretStore) {
	if c.SecretNamePrefix == "" {
		return
	}

	var dbCreds secrets.DatabaseCredentials
	if err := store.GetSecretJSON(ctx, c.SecretNamePrefix+"/database", &dbCreds); err == nil {
		c.DatabaseURL = dbCreds.URL()
	} else {
		slog.Warn("database secret not resolved, keeping env value", "error", err)
	}

	var adminCreds secrets.AdminCredentials
	if err := store.GetSecretJSON(ctx, c.SecretNamePrefix+"/admin", &adminCreds); err == nil {
		c.AdminUsername = adminCreds.Username
		c.AdminPasswordHash = adminCreds.PasswordHash
	}

	if key, err := store.GetSecret(ctx, c.SecretNamePrefix+"/encryption-key"); err == nil && key != "" {
		c.EncryptionKey = key
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
