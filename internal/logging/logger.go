// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is attached to every entry so shared log sinks can filter on it.
const Service = "scrape-gateway"

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]any{"service": Service}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// Headers flattens request headers into a loggable object, one value per key.
func Headers(h map[string][]string) zapcore.ObjectMarshalerFunc {
	return func(enc zapcore.ObjectEncoder) error {
		for k, values := range h {
			switch len(values) {
			case 0:
				enc.AddString(k, "")
			case 1:
				enc.AddString(k, values[0])
			default:
				if err := enc.AddArray(k, zapcore.ArrayMarshalerFunc(func(arr zapcore.ArrayEncoder) error {
					for _, v := range values {
						arr.AppendString(v)
					}
					return nil
				})); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
