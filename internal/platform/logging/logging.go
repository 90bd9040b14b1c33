// Package logging builds the process logger.
//
// Binaries log JSON through zap. Library packages log through log/slog, so
// the zap core is also exposed as a slog.Logger.
package logging

import (
	"fmt"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Init builds a JSON zap logger writing to stdout at the given level
// ("debug", "info", "warn", "error"; empty means info) tagged with the
// service name, installs it as the zap global and slog default, and returns
// both views of it.
func Init(service, level string) (*zap.Logger, *slog.Logger, error) {
	return InitTo(service, level, "stdout")
}

// InitTo is Init with a different output path, such as "stderr" for tools
// that write results to stdout.
func InitTo(service, level, output string) (*zap.Logger, *slog.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", level, err)
	}

	cfg := zap.Config{
		Level:            lvl,
		Encoding:         "json",
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields:    map[string]any{"service": service},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "msg",
			LevelKey:       "level",
			TimeKey:        "ts",
			CallerKey:      "src",
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	sl := Slog(logger)
	slog.SetDefault(sl)
	return logger, sl, nil
}

// Slog returns a slog.Logger writing to logger's core.
func Slog(logger *zap.Logger) *slog.Logger {
	return slog.New(zapslog.NewHandler(logger.Core(), zapslog.WithCaller(true)))
}
