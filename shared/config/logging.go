package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogConfig struct {
	Level  string
	Format string
}

// SetupLogging configures the standard logrus logger.
func SetupLogging(cfg LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	logrus.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.Format)
	}
	return nil
}
