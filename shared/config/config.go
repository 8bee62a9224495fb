// Package config reads service configuration from the environment. A .env
// file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const day = 24 * time.Hour

// AppConfig is the configuration shared by every service binary.
type AppConfig struct {
	GatewayPort  string
	GymPort      string
	TenantPort   string
	SweeperPort  string
	NotifierPort string

	GymServiceURL    string
	TenantServiceURL string

	JWTSecret    string
	JWKSURL      string
	AuthCacheTTL time.Duration

	DefaultTimezone   string
	StoreTimeout      time.Duration
	RequestTimeout    time.Duration
	ReadRetryAttempts int

	Database DatabaseConfig
	Redis    utils.RedisConfig

	DashboardCacheTTL time.Duration

	KafkaBroker  string
	KafkaTopic   string
	KafkaGroupID string

	SESRegion string
	SESSender string

	SweepSchedule        string
	SweepLeaseTTL        time.Duration
	CheckInRetention     time.Duration
	SnapshotRetention    time.Duration
	ExpiryReminderWindow time.Duration
	NotificationRetries  int

	RateLimitRPS   float64
	RateLimitBurst int

	Log LogConfig
}

// Load reads the configuration. Malformed numeric or duration values are
// errors rather than silently replaced by defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	cfg := &AppConfig{
		GatewayPort:      getEnv("GATEWAY_PORT", "8000"),
		GymPort:          getEnv("GYM_SERVICE_PORT", "8001"),
		TenantPort:       getEnv("TENANT_SERVICE_PORT", "8002"),
		SweeperPort:      getEnv("SWEEPER_PORT", "8003"),
		NotifierPort:     getEnv("NOTIFIER_PORT", "8004"),
		GymServiceURL:    getEnv("GYM_SERVICE_URL", "http://gym-service:8001"),
		TenantServiceURL: getEnv("TENANT_SERVICE_URL", "http://tenant-service:8002"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWKSURL:          os.Getenv("JWKS_URL"),
		DefaultTimezone:  getEnv("DEFAULT_TIMEZONE", clock.DefaultTimezone),
		Redis: utils.RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		KafkaBroker:   getEnv("KAFKA_BROKER", "kafka:9092"),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "membership-events"),
		KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "gym-notifier"),
		SESRegion:     getEnv("AWS_REGION", "us-east-1"),
		SESSender:     getEnv("SES_SENDER", "no-reply@example.com"),
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "FREQ=HOURLY"),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if !clock.Valid(cfg.DefaultTimezone) {
		return nil, fmt.Errorf("DEFAULT_TIMEZONE %q is not a valid IANA zone", cfg.DefaultTimezone)
	}

	var err error
	if cfg.Database, err = GetDatabaseConfig(); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.AuthCacheTTL, err = getEnvDuration("AUTH_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = getEnvDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReadRetryAttempts, err = getEnvInt("READ_RETRY_ATTEMPTS", utils.DefaultReadAttempts); err != nil {
		return nil, err
	}
	if cfg.DashboardCacheTTL, err = getEnvDuration("DASHBOARD_CACHE_TTL", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepLeaseTTL, err = getEnvDuration("SWEEP_LEASE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CheckInRetention, err = getEnvDays("CHECKIN_RETENTION_DAYS", 90); err != nil {
		return nil, err
	}
	if cfg.SnapshotRetention, err = getEnvDays("SNAPSHOT_RETENTION_DAYS", 365); err != nil {
		return nil, err
	}
	if cfg.ExpiryReminderWindow, err = getEnvDays("EXPIRY_REMINDER_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.NotificationRetries, err = getEnvInt("NOTIFICATION_MAX_RETRIES", 8); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getEnvFloat("RATE_LIMIT_RPS", 20); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", 40); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvDays(key string, defaultDays int) (time.Duration, error) {
	n, err := getEnvInt(key, defaultDays)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1, got %d", key, n)
	}
	return time.Duration(n) * day, nil
}
