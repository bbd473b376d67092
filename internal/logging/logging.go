package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"budget-backend/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. JSON in production, console in development,
// and a JSON file tee when LOG_FILE is set.
func New(cfg *config.Config) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEnc zapcore.Encoder
	lvl := zapcore.InfoLevel
	if cfg.Environment == "development" {
		devCfg := zap.NewDevelopmentEncoderConfig()
		consoleEnc = zapcore.NewConsoleEncoder(devCfg)
		lvl = zapcore.DebugLevel
	} else {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEnc, zapcore.AddSync(os.Stdout), lvl)}

	var fileErr error
	if cfg.LogFile != "" {
		core, err := fileCore(cfg.LogFile, encCfg)
		if err != nil {
			fileErr = err
		} else {
			cores = append(cores, core)
		}
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).With(zap.String("service", cfg.ServiceName))
	if fileErr != nil {
		log.Warn("log file disabled, logging to stdout only", zap.String("path", cfg.LogFile), zap.Error(fileErr))
	}
	return log
}

func fileCore(path string, encCfg zapcore.EncoderConfig) (zapcore.Core, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel), nil
}
