// Package logging configures the process-wide logrus logger and provides
// request-scoped log helpers for the gin handlers.
package logging

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Setup configures the global logrus logger from the resolved config values.
// It is idempotent; the most recent call wins.
func Setup(level, format string) error {
	switch format {
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	default:
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	return nil
}
