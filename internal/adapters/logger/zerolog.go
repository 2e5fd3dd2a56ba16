package logger

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// LogLevel defines the logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string level to LogLevel.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo // Default to Info
	}
}

func (l LogLevel) toZerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ZeroLogger implements the ports.Logger interface using rs/zerolog.
type ZeroLogger struct {
	log zerolog.Logger
}

// NewZeroLogger creates a structured logger writing JSON to os.Stderr.
func NewZeroLogger(level LogLevel) *ZeroLogger {
	zl := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level.toZerolog())
	return &ZeroLogger{log: zl}
}

func emit(e *zerolog.Event, msg string, fields ...map[string]interface{}) {
	if len(fields) > 0 && fields[0] != nil {
		e = e.Fields(fields[0])
	}
	e.Msg(msg)
}

// Debug logs a message at Debug level.
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	emit(l.log.Debug(), msg, fields...)
}

// Info logs a message at Info level.
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	emit(l.log.Info(), msg, fields...)
}

// Warn logs a message at Warning level.
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	emit(l.log.Warn(), msg, fields...)
}

// Error logs an error message at Error level.
func (l *ZeroLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	emit(l.log.Error().Err(err), msg, fields...)
}
