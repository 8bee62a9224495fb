package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8001", cfg.GymPort)
	assert.Equal(t, "America/Argentina/Buenos_Aires", cfg.DefaultTimezone)
	assert.Equal(t, 90*24*time.Hour, cfg.CheckInRetention)
	assert.Equal(t, 365*24*time.Hour, cfg.SnapshotRetention)
	assert.Equal(t, 7*24*time.Hour, cfg.ExpiryReminderWindow)
	assert.Equal(t, "FREQ=HOURLY", cfg.SweepSchedule)
	assert.Equal(t, 3, cfg.ReadRetryAttempts)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEFAULT_TIMEZONE", "Europe/Madrid")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("CHECKIN_RETENTION_DAYS", "30")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Madrid", cfg.DefaultTimezone)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 30*24*time.Hour, cfg.CheckInRetention)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := map[string]string{
		"STORE_TIMEOUT":           "soon",
		"READ_RETRY_ATTEMPTS":     "three",
		"SNAPSHOT_RETENTION_DAYS": "0",
		"DEFAULT_TIMEZONE":        "Mars/Olympus",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSetupLogging(t *testing.T) {
	defer logrus.SetFormatter(&logrus.TextFormatter{})
	defer logrus.SetLevel(logrus.InfoLevel)

	require.NoError(t, SetupLogging(LogConfig{Level: "debug", Format: "json"}))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	assert.Error(t, SetupLogging(LogConfig{Level: "loud"}))
	assert.Error(t, SetupLogging(LogConfig{Level: "info", Format: "xml"}))
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "gyms", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=gyms sslmode=disable", cfg.GetDSN())
}
