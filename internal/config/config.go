// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Port     string
	LogLevel string
	Env      string

	DB      DBConfig
	Redis   RedisConfig
	AWS     AWSConfig
	Webhook WebhookConfig
	SOS     SOSConfig
	Worker  WorkerConfig
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds AWS service settings.
type AWSConfig struct {
	Region       string
	SESFromEmail string
	SNSOpsTopic  string
	SQSQueueURL  string
}

// WebhookConfig holds the operations webhook settings.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// SOSConfig holds alert lifecycle tuning.
type SOSConfig struct {
	// LocationTimeout bounds how long a trigger waits for a device
	// location fix before proceeding without one.
	LocationTimeout time.Duration

	// AllowEscalatedClosure permits operators to resolve or cancel
	// alerts directly from the escalated state.
	AllowEscalatedClosure bool

	// RateLimit is the max trigger requests per user per window.
	RateLimit       int
	RateLimitWindow time.Duration
}

// WorkerConfig holds delivery worker tuning.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("ENV", "development"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "guardline"),
			Password: getEnv("DB_PASSWORD", "guardline"),
			Name:     getEnv("DB_NAME", "guardline"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:       getEnv("AWS_REGION", "us-east-1"),
			SESFromEmail: getEnv("SES_FROM_EMAIL", "alerts@guardline.app"),
			SNSOpsTopic:  getEnv("SNS_OPS_TOPIC_ARN", ""),
			SQSQueueURL:  getEnv("SQS_QUEUE_URL", ""),
		},
		Webhook: WebhookConfig{
			URL:     getEnv("OPS_WEBHOOK_URL", ""),
			Timeout: getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		SOS: SOSConfig{
			LocationTimeout:       getEnvDuration("SOS_LOCATION_TIMEOUT", 5*time.Second),
			AllowEscalatedClosure: getEnvBool("SOS_ALLOW_ESCALATED_CLOSURE", false),
			RateLimit:             getEnvInt("SOS_RATE_LIMIT", 10),
			RateLimitWindow:       getEnvDuration("SOS_RATE_LIMIT_WINDOW", time.Minute),
		},
		Worker: WorkerConfig{
			PollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getEnvInt("WORKER_BATCH_SIZE", 10),
			MaxRetries:   getEnvInt("WORKER_MAX_RETRIES", 3),
		},
	}

	if cfg.SOS.RateLimit <= 0 {
		return nil, fmt.Errorf("SOS_RATE_LIMIT must be positive, got %d", cfg.SOS.RateLimit)
	}
	if cfg.Worker.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive, got %d", cfg.Worker.BatchSize)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
