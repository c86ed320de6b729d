package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kyleking/sqlpilot/internal/config"
)

const (
	// File permissions for log directories and files
	logDirPerm  = 0755
	logFilePerm = 0644
)

// Logger provides structured logging on top of zap
type Logger struct {
	base   *zap.Logger
	closer io.Closer
}

var (
	globalMu     sync.RWMutex
	globalLogger = &Logger{base: zap.NewNop()}
	loggerOnce   sync.Once
)

// InitializeLogger initializes the global logger with the given configuration
func InitializeLogger(cfg config.LoggingConfig) error {
	var err error

	loggerOnce.Do(func() {
		var logger *Logger

		logger, err = NewLogger(cfg)
		if err == nil {
			SetLogger(logger)
		}
	})

	return err
}

// NewLogger creates a new logger with the given configuration
func NewLogger(cfg config.LoggingConfig) (*Logger, error) {
	var (
		sink   zapcore.WriteSyncer
		closer io.Closer
	)

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "stderr", "":
		sink = zapcore.Lock(os.Stderr)
	case "file":
		if cfg.File == "" {
			return nil, errors.New("log file path is required when output is 'file'")
		}

		if err := os.MkdirAll(filepath.Dir(cfg.File), logDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		sink = zapcore.Lock(file)
		closer = file
	default:
		return nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := newZapLogger(cfg, sink)
	logger.closer = closer

	return logger, nil
}

// NewLoggerWithWriter builds a logger that writes to w, ignoring cfg.Output
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *Logger {
	return newZapLogger(cfg, zapcore.AddSync(w))
}

func newZapLogger(cfg config.LoggingConfig, sink zapcore.WriteSyncer) *Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		CallerKey:      "caller",
		NameKey:        zapcore.OmitKey,
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, sink, parseLogLevel(cfg.Level))

	var opts []zap.Option
	if cfg.AddSource || strings.ToLower(cfg.Level) == "debug" {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	return &Logger{base: zap.New(core, opts...)}
}

// parseLogLevel parses a string log level into a zap level
func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{base: l.base.With(zap.Any(key, value)), closer: l.closer}
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]any) *Logger {
	zfields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zfields = append(zfields, zap.Any(k, v))
	}

	return &Logger{base: l.base.With(zfields...), closer: l.closer}
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	return &Logger{base: l.base.With(zap.String("error", err.Error())), closer: l.closer}
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level string) bool {
	return l.base.Core().Enabled(parseLogLevel(level))
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.base.Debug(message)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...any) {
	if ce := l.base.Check(zapcore.DebugLevel, ""); ce != nil {
		ce.Message = fmt.Sprintf(format, args...)
		ce.Write()
	}
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.base.Info(message)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...any) {
	if ce := l.base.Check(zapcore.InfoLevel, ""); ce != nil {
		ce.Message = fmt.Sprintf(format, args...)
		ce.Write()
	}
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.base.Warn(message)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...any) {
	if ce := l.base.Check(zapcore.WarnLevel, ""); ce != nil {
		ce.Message = fmt.Sprintf(format, args...)
		ce.Write()
	}
}

// Error logs an error message
func (l *Logger) Error(message string) {
	l.base.Error(message)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...any) {
	if ce := l.base.Check(zapcore.ErrorLevel, ""); ce != nil {
		ce.Message = fmt.Sprintf(format, args...)
		ce.Write()
	}
}

// ErrorWithErr logs an error message with an associated error
func (l *Logger) ErrorWithErr(message string, err error) {
	l.base.Error(message, zap.Error(err))
}

// Close flushes buffered entries and closes any log file
func (l *Logger) Close() error {
	_ = l.base.Sync()

	if l.closer != nil {
		return l.closer.Close()
	}

	return nil
}

// Global logging functions that use the global logger

// SetLogger replaces the global logger
func SetLogger(logger *Logger) {
	if logger == nil {
		return
	}

	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetLogger returns the global logger instance, a no-op logger until initialized
func GetLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	return globalLogger
}

// SetupFallbackLogger sets up a basic stderr logger for cases where configuration fails
func SetupFallbackLogger() {
	SetLogger(newZapLogger(config.LoggingConfig{Level: "info", Format: "text"}, zapcore.Lock(os.Stderr)))
}

// Debugf logs a formatted debug message using the global logger
func Debugf(format string, args ...any) {
	GetLogger().Debugf(format, args...)
}

// Infof logs a formatted info message using the global logger
func Infof(format string, args ...any) {
	GetLogger().Infof(format, args...)
}

// Warnf logs a formatted warning message using the global logger
func Warnf(format string, args ...any) {
	GetLogger().Warnf(format, args...)
}

// Errorf logs a formatted error message using the global logger
func Errorf(format string, args ...any) {
	GetLogger().Errorf(format, args...)
}

// WithField adds a field to the global logger context
func WithField(key string, value any) *Logger {
	return GetLogger().WithField(key, value)
}

// WithFields adds multiple fields to the global logger context
func WithFields(fields map[string]any) *Logger {
	return GetLogger().WithFields(fields)
}

// WithError adds an error to the global logger context
func WithError(err error) *Logger {
	return GetLogger().WithError(err)
}

// LoggerMiddleware wraps fn with start and completion logging. Failures are
// logged at debug level with the error attached; reporting them is the caller's job.
func LoggerMiddleware(operation string, fn func() error) error {
	logger := WithField("operation", operation)
	logger.Debug("Starting operation")

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		logger.WithField("duration", duration).WithError(err).Debug("Operation failed")
	} else {
		logger.WithField("duration", duration).Debug("Operation completed successfully")
	}

	return err
}
