// Package logging provides the structured logger for indexd.
//
// Services receive a *zap.Logger at construction and derive named children.
// Request- and job-scoped correlation fields (tenant id, document id, job id)
// travel through context and are attached with ContextFields.
package logging

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/driftwoodlabs/indexd/internal/config"
)

// New creates a logger from config.
//
// Format "json" produces production JSON output; "console" produces
// human-readable development output. Unknown levels fail loudly rather
// than silently defaulting.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case "json", "":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level)
	return zap.New(core, zap.AddCaller()), nil
}

// Sync flushes buffered entries, ignoring the harmless EINVAL/ENOTTY that
// syncing stderr returns on Linux.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}
