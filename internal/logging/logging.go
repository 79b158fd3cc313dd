// Package logging provides the shared structured logging facade for the
// cost aggregation service, backed by logrus with optional file rotation.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = logrus.New()

// SetupBaseLogger configures the base logger with sane defaults.
// Called once from main before any command runs.
func SetupBaseLogger() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)
}

// SetDebug toggles debug-level logging.
func SetDebug(debug bool) {
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

// ConfigureLogOutput redirects log output to a rotating file when path is
// non-empty. Stderr remains the output otherwise.
func ConfigureLogOutput(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, rotating))
	return nil
}

// WithField returns an entry with a single structured field attached.
func WithField(key string, value any) *logrus.Entry {
	return logger.WithField(key, value)
}

// WithFields returns an entry with multiple structured fields attached.
func WithFields(fields map[string]any) *logrus.Entry {
	return logger.WithFields(fields)
}

// WithError returns an entry with the error attached as a field.
func WithError(err error) *logrus.Entry {
	return logger.WithError(err)
}

func Debugf(format string, args ...any) { logger.Debugf(format, args...) }
func Infof(format string, args ...any)  { logger.Infof(format, args...) }
func Warnf(format string, args ...any)  { logger.Warnf(format, args...) }
func Errorf(format string, args ...any) { logger.Errorf(format, args...) }
func Fatalf(format string, args ...any) { logger.Fatalf(format, args...) }
