// Package logger defines the logging contract used across the engine.
package logger

// Logger is the leveled logging interface the engine components depend on.
// Implementations live in infra/logger.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
