package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means warn.
	Level string
	// Console receives human-readable output. Nil disables the console core.
	Console io.Writer
	// File is the rotating JSON log file. Empty disables the file core.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

type ctxKey struct{}

var nop = zap.NewNop().Sugar()

// New builds a logger writing colourless console lines to Options.Console and
// JSON lines to a lumberjack-rotated file. The returned closer flushes and
// closes the file and must be called when logging is no longer needed.
func New(opts Options) (*zap.SugaredLogger, io.Closer, error) {
	level := zapcore.WarnLevel
	if opts.Level != "" {
		parsed, ok := ParseLevel(opts.Level)
		if !ok {
			return nil, nil, fmt.Errorf("unknown log level %q", opts.Level)
		}
		level = parsed
	}

	var (
		cores  []zapcore.Core
		closer io.Closer = noopCloser{}
	)

	if opts.Console != nil {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderConfig()),
			zapcore.AddSync(opts.Console),
			level,
		))
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   opts.Compress,
			LocalTime:  true,
		}
		fileLevel := level
		if fileLevel > zapcore.InfoLevel {
			fileLevel = zapcore.InfoLevel
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			fileLevel,
		))
		closer = rotator
	}

	if len(cores) == 0 {
		return nop, closer, nil
	}

	logger := zap.New(zapcore.NewTee(cores...)).Sugar()
	return logger, syncCloser{logger: logger, next: closer}, nil
}

// ParseLevel converts a level name to a zap level.
func ParseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.WarnLevel, false
	}
}

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx == nil {
		return nop
	}
	if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok && l != nil {
		return l
	}
	return nop
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.LowercaseLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

type syncCloser struct {
	logger *zap.SugaredLogger
	next   io.Closer
}

func (c syncCloser) Close() error {
	// Sync on a terminal returns EINVAL on some platforms; nothing to report.
	_ = c.logger.Sync()
	return c.next.Close()
}
