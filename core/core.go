package core

import "github.com/hupe1980/caredesk/logging"

// loggerAdapter wraps a logging.Logger and prepends fixed key/value pairs
// (the run and call identifiers) to every record. A nil logger becomes a
// NoOpLogger.
type loggerAdapter struct {
	logger logging.Logger
	fields []any
}

func newLoggerAdapter(l logging.Logger, fields ...any) *loggerAdapter {
	return &loggerAdapter{logger: logging.OrNoOp(l), fields: fields}
}

// Logger returns the underlying logger.
func (l *loggerAdapter) Logger() logging.Logger {
	return l.logger
}

func (l *loggerAdapter) with(args []any) []any {
	return append(append(make([]any, 0, len(l.fields)+len(args)), l.fields...), args...)
}

// LogDebug logs a debug message.
func (l *loggerAdapter) LogDebug(msg string, args ...any) {
	l.logger.Debug(msg, l.with(args)...)
}

// LogInfo logs an info message.
func (l *loggerAdapter) LogInfo(msg string, args ...any) {
	l.logger.Info(msg, l.with(args)...)
}

// LogWarn logs a warning message.
func (l *loggerAdapter) LogWarn(msg string, args ...any) {
	l.logger.Warn(msg, l.with(args)...)
}
