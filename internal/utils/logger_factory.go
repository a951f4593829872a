package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel identifies the minimum severity emitted by created loggers.
type LogLevel string

// Log levels accepted by CreateLogger.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat identifies the encoding applied to created loggers.
type LogFormat string

// Log formats accepted by CreateLogger.
const (
	LogFormatStructured LogFormat = "structured"
	LogFormatConsole    LogFormat = "console"
)

const (
	structuredEncodingNameConstant        = "json"
	consoleEncodingNameConstant           = "console"
	unknownLogLevelErrorTemplateConstant  = "unsupported log level: %s"
	unknownLogFormatErrorTemplateConstant = "unsupported log format: %s"
)

// LoggerFactory builds zap loggers for the command-line entry points.
type LoggerFactory struct{}

// NewLoggerFactory returns a factory ready to create loggers.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{}
}

// CreateLogger builds a production zap logger writing to standard error with the
// requested severity and encoding.
func (factory *LoggerFactory) CreateLogger(requestedLogLevel LogLevel, requestedLogFormat LogFormat) (*zap.Logger, error) {
	zapLevel, levelError := resolveZapLevel(requestedLogLevel)
	if levelError != nil {
		return nil, levelError
	}

	zapEncoding, encodingError := resolveZapEncoding(requestedLogFormat)
	if encodingError != nil {
		return nil, encodingError
	}

	loggerConfiguration := zap.NewProductionConfig()
	loggerConfiguration.Level = zap.NewAtomicLevelAt(zapLevel)
	loggerConfiguration.Encoding = zapEncoding

	return loggerConfiguration.Build()
}

func resolveZapLevel(requestedLogLevel LogLevel) (zapcore.Level, error) {
	switch requestedLogLevel {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo:
		return zapcore.InfoLevel, nil
	case LogLevelWarn:
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InvalidLevel, fmt.Errorf(unknownLogLevelErrorTemplateConstant, requestedLogLevel)
	}
}

func resolveZapEncoding(requestedLogFormat LogFormat) (string, error) {
	switch requestedLogFormat {
	case LogFormatStructured:
		return structuredEncodingNameConstant, nil
	case LogFormatConsole:
		return consoleEncodingNameConstant, nil
	default:
		return "", fmt.Errorf(unknownLogFormatErrorTemplateConstant, requestedLogFormat)
	}
}
