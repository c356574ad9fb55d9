// Package logging configures Logrus from the [log] config section: level,
// text or JSON output, and UTC timestamps with subsecond precision.
package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/agenthands/bayesnet/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05.000000 MST"

// Configure sets up logger, or the standard logger when logger is nil. It is
// safe to call more than once but not concurrently.
func Configure(logger *logrus.Logger, cfg config.LogConfig) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	level := logrus.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("bad log level: %w", err)
		}
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:             true,
			TimestampFormat:           timestampFormat,
			EnvironmentOverrideColors: true,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	logger.ReplaceHooks(logrus.LevelHooks{})
	logger.AddHook(utcHook{})
	return nil
}

// utcHook converts entry timestamps to UTC.
type utcHook struct{}

func (utcHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (utcHook) Fire(entry *logrus.Entry) error {
	entry.Time = entry.Time.UTC()
	return nil
}
