package utils

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	unsupportedLogLevelTemplateConstant  = "unsupported log level: %s"
	unsupportedLogFormatTemplateConstant = "unsupported log format: %s"
	loggerBuildErrorTemplateConstant     = "unable to build logger: %w"
)

// LogLevel enumerates supported logging granularities.
type LogLevel string

// Supported log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat enumerates supported logger output encodings.
type LogFormat string

// Supported log formats.
const (
	LogFormatStructured LogFormat = "structured"
	LogFormatConsole    LogFormat = "console"
)

var logLevelMapping = map[LogLevel]zapcore.Level{
	LogLevelDebug: zapcore.DebugLevel,
	LogLevelInfo:  zapcore.InfoLevel,
	LogLevelWarn:  zapcore.WarnLevel,
	LogLevelError: zapcore.ErrorLevel,
}

// LoggerFactory builds zap loggers writing diagnostics to standard error.
type LoggerFactory struct{}

// NewLoggerFactory constructs a new logger factory.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{}
}

// CreateLogger produces a zap.Logger honoring the requested level and format.
// Level and format names are matched case-insensitively.
func (factory *LoggerFactory) CreateLogger(requestedLogLevel LogLevel, requestedLogFormat LogFormat) (*zap.Logger, error) {
	zapLogLevel, levelSupported := logLevelMapping[LogLevel(strings.ToLower(strings.TrimSpace(string(requestedLogLevel))))]
	if !levelSupported {
		return nil, fmt.Errorf(unsupportedLogLevelTemplateConstant, requestedLogLevel)
	}

	var configuration zap.Config
	switch LogFormat(strings.ToLower(strings.TrimSpace(string(requestedLogFormat)))) {
	case LogFormatStructured:
		configuration = zap.NewProductionConfig()
	case LogFormatConsole:
		configuration = zap.NewDevelopmentConfig()
		configuration.Development = false
		configuration.DisableStacktrace = true
		configuration.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf(unsupportedLogFormatTemplateConstant, requestedLogFormat)
	}
	configuration.Level = zap.NewAtomicLevelAt(zapLogLevel)

	logger, buildError := configuration.Build()
	if buildError != nil {
		return nil, fmt.Errorf(loggerBuildErrorTemplateConstant, buildError)
	}
	return logger, nil
}
