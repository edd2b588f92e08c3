package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Debug mode switches to the colored development
// encoder; otherwise JSON with an ISO-8601 "timestamp" key is used.
func New(level string, debug bool) (*zap.Logger, error) {
	var config zap.Config

	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.MessageKey = "message"
	}

	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	return config.Build()
}

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "TRACE", "DEBUG":
		return zap.DebugLevel
	case "WARN":
		return zap.WarnLevel
	case "ERROR":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
