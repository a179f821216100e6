// Package logging builds the zap logger shared by every spacegraph server.
package logging

import (
	"context"
	"fmt"
	"strings"

	"github.com/n9te9/spacegraph/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger in development mode and a JSON logger otherwise.
func New(cfg config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if cfg.Level == "" {
		level, err = zapcore.InfoLevel, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// GraphQLLogger adapts zap to the panic logger interface of graphql-go.
type GraphQLLogger struct {
	Logger *zap.Logger
}

func (l *GraphQLLogger) LogPanic(_ context.Context, value interface{}) {
	l.Logger.Error("graphql resolver panic", zap.Any("panic", value), zap.Stack("stack"))
}
