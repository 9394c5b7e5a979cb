package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog.Level so callers configuring this package never
// need to import zerolog themselves.
type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
	LevelFatal = zerolog.FatalLevel
)

// ParseLevel parses a string level to Level, defaulting to info on an
// unrecognized value.
func ParseLevel(s string) Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return LevelInfo
	}
	return lvl
}

// Logger wraps a zerolog.Logger, keeping the WithX chaining surface the
// rest of the codebase already calls.
type Logger struct {
	z zerolog.Logger
}

// Config for logger.
type Config struct {
	Level   Level
	Output  io.Writer
	Service string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger. Only the first call has effect.
func Init(cfg Config) {
	once.Do(func() {
		defaultLogger = New(cfg)
	})
}

// Default returns the default logger, initializing it with sane
// defaults on first use if Init was never called.
func Default() *Logger {
	if defaultLogger == nil {
		Init(Config{Level: LevelInfo, Output: os.Stdout, Service: "hybridcache"})
	}
	return defaultLogger
}

// New creates a standalone logger instance, independent of Default.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	service := cfg.Service
	if service == "" {
		service = "hybridcache"
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	z := zerolog.New(cfg.Output).
		Level(cfg.Level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
	return &Logger{z: z}
}

// WithField returns a new logger with an additional field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}

// WithFields returns a new logger with additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.z.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{z: ctx.Logger()}
}

// WithContext extracts request_id and user_id from ctx when present. The
// admin HTTP middleware keeps request_id in fiber Locals rather than in a
// context.Context, so it does not fill these keys.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	z := l.z
	if reqID, ok := ctx.Value(ctxKeyRequestID).(string); ok && reqID != "" {
		z = z.With().Str("request_id", reqID).Logger()
	}
	if userID := ctx.Value(ctxKeyUserID); userID != nil {
		z = z.With().Interface("user_id", userID).Logger()
	}
	return &Logger{z: z}
}

// WithError adds error information.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{z: l.z.With().Err(err).Logger()}
}

// WithDuration adds duration in milliseconds.
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.WithField("duration_ms", float64(d.Microseconds())/1000.0)
}

func (l *Logger) Debug(msg string, args ...any) { l.z.Debug().Msgf(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.z.Info().Msgf(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.z.Warn().Msgf(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.z.Error().Msgf(msg, args...) }
func (l *Logger) Fatal(msg string, args ...any) { l.z.Fatal().Msgf(msg, args...) }

// Package-level functions using the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
func Fatal(msg string, args ...any) { Default().Fatal(msg, args...) }

func WithField(key string, value any) *Logger  { return Default().WithField(key, value) }
func WithFields(fields map[string]any) *Logger { return Default().WithFields(fields) }
func WithContext(ctx context.Context) *Logger  { return Default().WithContext(ctx) }
func WithError(err error) *Logger              { return Default().WithError(err) }
func WithDuration(d time.Duration) *Logger     { return Default().WithDuration(d) }

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyUserID
)
