// Package logging builds the zap logger shared by commands.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the level and destination.
type Options struct {
	Level string
	// File receives log output instead of stderr when set.
	File string
	// Debug forces debug level.
	Debug bool
}

// New returns a production-config logger. Output defaults to stderr so stdout
// stays free for reports.
func New(opt Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl := zapcore.InfoLevel
	if opt.Level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(opt.Level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opt.Level, err)
		}
	}
	if opt.Debug {
		lvl = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if opt.File != "" {
		if err := os.MkdirAll(filepath.Dir(opt.File), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir log dir: %w", err)
		}
		cfg.OutputPaths = []string{opt.File}
		cfg.ErrorOutputPaths = []string{opt.File}
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
