package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string, err error)
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

type LogrusLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
}

func NewLogrus() *LogrusLogger {
	logger := logrus.New()
	return &LogrusLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
	}
}

// NewLogrusWithOutput is NewLogrus writing to w, mostly for tests.
func NewLogrusWithOutput(w io.Writer) *LogrusLogger {
	l := NewLogrus()
	l.logger.SetOutput(w)
	return l
}

func (l *LogrusLogger) Debug(msg string) {
	l.entry.Debug(msg)
}

func (l *LogrusLogger) Info(msg string) {
	l.entry.Info(msg)
}

func (l *LogrusLogger) Warn(msg string) {
	l.entry.Warn(msg)
}

func (l *LogrusLogger) Error(msg string, err error) {
	l.entry.WithError(err).Error(msg)
}

func (l *LogrusLogger) WithField(key string, value interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithField(key, value),
	}
}

func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithFields(fields),
	}
}

func (l *LogrusLogger) SetLevel(level logrus.Level) {
	l.logger.SetLevel(level)
}

func (l *LogrusLogger) SetFormatter(formatter logrus.Formatter) {
	l.logger.SetFormatter(formatter)
}

func (l *LogrusLogger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

// Configure applies a level name ("debug", "info", "warn", "error") and a
// format ("text" or "json"). Unknown levels fall back to info.
func (l *LogrusLogger) Configure(level, format string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.logger.SetLevel(parsed)

	if format == "json" {
		l.logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.logger.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: false,
			FullTimestamp:    true,
		})
	}
}

// NopLogger discards everything.
type NopLogger struct{}

func NewNop() Logger {
	return NopLogger{}
}

func (NopLogger) Debug(string)        {}
func (NopLogger) Info(string)         {}
func (NopLogger) Warn(string)         {}
func (NopLogger) Error(string, error) {}

func (n NopLogger) WithField(string, interface{}) Logger { return n }

func (n NopLogger) WithFields(map[string]interface{}) Logger { return n }
