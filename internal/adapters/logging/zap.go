package logging

import (
	"context"
	"io"

	"github.com/felixgeelhaar/artifactrepo/internal/ports"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap.Logger to ports.Logger.
type ZapLogger struct {
	base  *zap.Logger
	level zap.AtomicLevel
}

// NewZapLogger creates a logger writing JSON entries to w.
func NewZapLogger(w io.Writer, level ports.Level) *ZapLogger {
	atom := zap.NewAtomicLevelAt(zapLevel(level))
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), atom)
	return &ZapLogger{base: zap.New(core), level: atom}
}

// WrapZap adapts an existing zap logger. A nil logger discards everything.
func WrapZap(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{base: logger, level: zap.NewAtomicLevelAt(logger.Level())}
}

// Debug logs a debug message.
func (l *ZapLogger) Debug(_ context.Context, msg string, fields ...ports.Field) {
	l.base.Debug(msg, zapFields(fields)...)
}

// Info logs an informational message.
func (l *ZapLogger) Info(_ context.Context, msg string, fields ...ports.Field) {
	l.base.Info(msg, zapFields(fields)...)
}

// Warn logs a warning message.
func (l *ZapLogger) Warn(_ context.Context, msg string, fields ...ports.Field) {
	l.base.Warn(msg, zapFields(fields)...)
}

// Error logs an error message.
func (l *ZapLogger) Error(_ context.Context, msg string, fields ...ports.Field) {
	l.base.Error(msg, zapFields(fields)...)
}

// With returns a logger that adds fields to every entry.
func (l *ZapLogger) With(fields ...ports.Field) ports.Logger {
	return &ZapLogger{base: l.base.With(zapFields(fields)...), level: l.level}
}

// Level returns the minimum log level.
func (l *ZapLogger) Level() ports.Level {
	switch l.level.Level() {
	case zapcore.DebugLevel:
		return ports.LevelDebug
	case zapcore.InfoLevel:
		return ports.LevelInfo
	case zapcore.WarnLevel:
		return ports.LevelWarn
	default:
		return ports.LevelError
	}
}

// SetLevel sets the minimum log level.
func (l *ZapLogger) SetLevel(level ports.Level) {
	l.level.SetLevel(zapLevel(level))
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}

func zapLevel(level ports.Level) zapcore.Level {
	switch level {
	case ports.LevelDebug:
		return zapcore.DebugLevel
	case ports.LevelWarn:
		return zapcore.WarnLevel
	case ports.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

var _ ports.Logger = (*ZapLogger)(nil)
