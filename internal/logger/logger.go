// Package logger builds the process logger.
package logger

import (
	"io"

	"github.com/sirupsen/logrus"

	"maskflow/internal/config"
)

// Logger wraps logrus.Logger with maskflow's context helpers.
type Logger struct {
	*logrus.Logger
}

// New creates a structured logger from cfg. An unknown level falls back to
// info; any format other than json is rendered as text with full timestamps.
func New(cfg config.LoggingConfig) *Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return &Logger{Logger: log}
}

// Discard returns a logger that writes nowhere, for tests and library
// callers that pass no logger.
func Discard() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Logger{Logger: log}
}

// WithExecution adds execution context to log entries.
func (l *Logger) WithExecution(executionID, workflowID string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"execution_id": executionID,
		"workflow_id":  workflowID,
	})
}

// WithConnection adds connection context to log entries.
func (l *Logger) WithConnection(connectionID, backend string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"connection_id": connectionID,
		"backend":       backend,
	})
}
