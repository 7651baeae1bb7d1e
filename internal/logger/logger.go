package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ippclub/crates-mcp/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger initializes the logger. Output goes to stderr, never stdout,
// because stdout carries the protocol stream.
func InitLogger(cfg *config.Config) (*zap.Logger, error) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg *config.Config, console io.Writer) (*zap.Logger, error) {
	syncers := []zapcore.WriteSyncer{zapcore.AddSync(console)}

	if cfg.Log.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.Filename), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Log.Filename,
			MaxSize:    cfg.Log.MaxSize, // megabytes
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge, // days
			Compress:   cfg.Log.Compress,
		}))
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(syncers...),
		getLogLevel(cfg.Log.Level),
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger.Named(cfg.Server.Name), nil
}

// getLogLevel maps the configured level onto zap. Anything outside
// debug..error falls back to info.
func getLogLevel(level string) zapcore.Level {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil || parsed < zapcore.DebugLevel || parsed > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return parsed
}
