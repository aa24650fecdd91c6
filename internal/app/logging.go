package app

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/acessivel/mobility/internal/logger"
	"github.com/acessivel/mobility/pkg/config"
)

// SetupLogging applies the logging section to l. --debug wins over the
// configured level and switches to JSON; --verbose raises warn to info.
// When a log file is configured the returned closer must be closed on exit.
func SetupLogging(l *logger.LogrusLogger, cfg config.LoggingConfig, debug, verbose bool) (io.Closer, error) {
	level, format := cfg.Level, cfg.Format
	if level == "" {
		level = "warn"
	}
	switch {
	case debug:
		level, format = "debug", "json"
	case verbose && (level == "warn" || level == "error"):
		level = "info"
	}
	l.Configure(level, format)

	if format != "json" {
		l.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: cfg.File == "",
			FullTimestamp:    cfg.File != "",
		})
	}

	if cfg.File == "" {
		l.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
	}
	l.SetOutput(f)
	return f, nil
}
