package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin key/value logger over zap's sugared API.
type Logger struct {
	z *zap.SugaredLogger
}

// NewLogger builds a production JSON logger at info level.
func NewLogger() *Logger {
	lg, err := NewLoggerWithLevel("info")
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return lg
}

func NewLoggerWithLevel(level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z.Sugar()}, nil
}

// NewNopLogger discards everything; handy in tests.
func NewNopLogger() *Logger { return &Logger{z: zap.NewNop().Sugar()} }

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger { return &Logger{z: z.Sugar()} }

func (lg *Logger) Debug(msg string, kv ...any) { lg.z.Debugw(msg, kv...) }
func (lg *Logger) Info(msg string, kv ...any)  { lg.z.Infow(msg, kv...) }
func (lg *Logger) Warn(msg string, kv ...any)  { lg.z.Warnw(msg, kv...) }
func (lg *Logger) Error(msg string, kv ...any) { lg.z.Errorw(msg, kv...) }

// With returns a child logger that always carries kv.
func (lg *Logger) With(kv ...any) *Logger { return &Logger{z: lg.z.With(kv...)} }

func (lg *Logger) Sync() error { return lg.z.Sync() }
