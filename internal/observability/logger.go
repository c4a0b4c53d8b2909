// Package observability builds the logger and Prometheus metrics shared by all
// pipelines and the API.
package observability

import (
	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger at level ("info" when unparsable) using the json
// formatter or, for any other format, the text formatter.
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
