package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New picks the development logger for ENVIRONMENT=development and the
// production JSON logger otherwise.
func New(serviceName, environment string) *zap.Logger {
	if environment == "development" {
		return NewDevelopmentLogger(serviceName)
	}
	return NewLogger(serviceName)
}

// NewLogger creates the JSON logger used in production.
func NewLogger(serviceName string) *zap.Logger {
	return build(productionConfig(serviceName))
}

// NewDevelopmentLogger creates a console logger with colored levels.
func NewDevelopmentLogger(serviceName string) *zap.Logger {
	return build(developmentConfig(serviceName))
}

// productionConfig keeps every entry: issuance and deposit lines are the
// only record of what was credited, so they must not be sampled away.
// Upstream failures are routine and logged at Error without stack traces.
func productionConfig(serviceName string) zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	cfg.InitialFields = map[string]interface{}{"service": serviceName}
	return cfg
}

func developmentConfig(serviceName string) zap.Config {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cfg.InitialFields = map[string]interface{}{"service": serviceName}
	return cfg
}

func build(cfg zap.Config) *zap.Logger {
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
