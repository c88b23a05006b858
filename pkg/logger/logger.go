// Package logger provides the structured logger shared by the orchestrator
// and the services it runs. It is a thin layer over logrus that fixes the
// field names and output formats used across the codebase.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error. Defaults to info.
	Level string `yaml:"level" env:"ORCH_LOG_LEVEL"`

	// Format is "text" or "json". Defaults to text.
	Format string `yaml:"format" env:"ORCH_LOG_FORMAT"`

	// Output is "stdout", "stderr" or "file". Defaults to stdout.
	Output string `yaml:"output" env:"ORCH_LOG_OUTPUT"`

	// FilePrefix names the log file when Output is "file".
	FilePrefix string `yaml:"file_prefix" env:"ORCH_LOG_FILE_PREFIX"`
}

// Logger is a named logrus logger.
type Logger struct {
	*logrus.Logger
	name string
}

// New builds a logger from cfg. Invalid values fall back to defaults.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()
	base.SetLevel(parseLevel(cfg.Level))

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	out, err := openOutput(cfg)
	if err != nil {
		base.SetOutput(os.Stderr)
		base.WithError(err).Warn("log output unavailable, using stderr")
	} else {
		base.SetOutput(out)
	}

	return &Logger{Logger: base, name: "orchestrator"}
}

// NewDefault returns an info level text logger tagged with name.
func NewDefault(name string) *Logger {
	l := New(LoggingConfig{})
	l.name = name
	return l
}

// NewDiscard returns a logger that drops everything. Used by tests.
func NewDiscard() *Logger {
	l := New(LoggingConfig{})
	l.SetOutput(io.Discard)
	l.name = "discard"
	return l
}

// Name returns the logger name.
func (l *Logger) Name() string {
	return l.name
}

// Named returns a copy of l that shares output and level but reports a different name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger, name: name}
}

// Entry returns an entry pre-populated with the logger name.
func (l *Logger) Entry() *logrus.Entry {
	return l.Logger.WithField("logger", l.name)
}

// WithService returns an entry tagged with a service identifier.
func (l *Logger) WithService(id string) *logrus.Entry {
	return l.Entry().WithField("service", id)
}

func parseLevel(raw string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func openOutput(cfg LoggingConfig) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		prefix := strings.TrimSpace(cfg.FilePrefix)
		if prefix == "" {
			prefix = "orchestrator"
		}
		path := filepath.Clean(prefix + ".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}
}
