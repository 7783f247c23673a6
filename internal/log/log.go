package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	SetLevel(os.Getenv("LOG_LEVEL"))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// SetLevel applies a LOG_LEVEL style name; unknown or empty names select INFO.
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		logger.SetLevel(logrus.DebugLevel)
	case "WARN":
		logger.SetLevel(logrus.WarnLevel)
	case "ERROR":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	return logger
}
