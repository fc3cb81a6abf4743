package logger

import (
  "fmt"
  "strings"

  "go.uber.org/zap"
  "go.uber.org/zap/zapcore"
)

// Logger is a thin key/value wrapper around zap's sugared logger.
// Every call takes a message followed by alternating keys and values:
//
//   log.Warn("Failed to load chat", "chatID", id, "error", err)
type Logger struct {
  sugar *zap.SugaredLogger
}

// New builds a Logger for the given mode. "development" (and anything unknown)
// gives colored console output at debug level, "production" gives JSON at info.
func New(mode string) (*Logger, error) {
  var cfg zap.Config
  switch strings.ToLower(strings.TrimSpace(mode)) {
  case "production", "prod":
    cfg = zap.NewProductionConfig()
  case "test":
    cfg = zap.NewDevelopmentConfig()
    cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
  default:
    cfg = zap.NewDevelopmentConfig()
    cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
  }
  cfg.EncoderConfig.TimeKey = "time"
  cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

  base, err := cfg.Build(zap.AddCallerSkip(1))
  if err != nil {
    return nil, fmt.Errorf("failed to build zap logger: %w", err)
  }
  return &Logger{sugar: base.Sugar()}, nil
}

// NewNop returns a Logger that discards everything. Handy in tests.
func NewNop() *Logger {
  return &Logger{sugar: zap.NewNop().Sugar()}
}

func (l *Logger) With(args ...interface{}) *Logger {
  return &Logger{sugar: l.sugar.With(args...)}
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
  l.sugar.Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
  l.sugar.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
  l.sugar.Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
  l.sugar.Errorw(msg, keysAndValues...)
}

func (l *Logger) Sync() error {
  return l.sugar.Sync()
}
