package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/kyleking/sqlpilot/internal/config"
)

func jsonLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: level, Format: "json"}, &buf)

	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}

	return entries
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"invalid", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestNewLoggerOutputs(t *testing.T) {
	for _, output := range []string{"stdout", "stderr"} {
		logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "text", Output: output})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}

	_, err := NewLogger(config.LoggingConfig{Level: "info", Output: "syslog"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log output")

	_, err = NewLogger(config.LoggingConfig{Level: "info", Output: "file"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log file path is required")
}

func TestNewLoggerFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "nested", "app.log")

	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json", Output: "file", File: logFile})
	require.NoError(t, err)

	logger.Info("schema snapshot built")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "schema snapshot built")
}

func TestLoggerWithFields(t *testing.T) {
	logger, buf := jsonLogger("info")

	logger.WithField("table", "users").
		WithFields(map[string]any{"driver": "sqlite", "columns": 4}).
		Info("introspected table")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "introspected table", entries[0]["message"])
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "users", entries[0]["table"])
	assert.Equal(t, "sqlite", entries[0]["driver"])
	assert.EqualValues(t, 4, entries[0]["columns"])
}

func TestLoggerWithFieldDoesNotLeak(t *testing.T) {
	logger, buf := jsonLogger("info")

	_ = logger.WithField("request_id", "abc")
	logger.Info("plain")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0], "request_id")
}

func TestLoggerWithError(t *testing.T) {
	logger, buf := jsonLogger("info")

	logger.WithError(errors.New("boom")).Warn("agent call failed")
	assert.Same(t, logger, logger.WithError(nil))

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0]["error"])
	assert.Equal(t, "WARN", entries[0]["level"])
}

func TestLoggerLevels(t *testing.T) {
	logger, buf := jsonLogger("warn")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn message", entries[0]["message"])
	assert.Equal(t, "error message", entries[1]["message"])

	assert.False(t, logger.Enabled("info"))
	assert.True(t, logger.Enabled("error"))
}

func TestLoggerFormattedMessages(t *testing.T) {
	logger, buf := jsonLogger("debug")

	logger.Debugf("selected %d tables", 2)
	logger.Infof("provider %s answered", "openai")
	logger.Warnf("dropped statement %d", 1)
	logger.Errorf("refresh failed after %s", "3s")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 4)
	assert.Equal(t, "selected 2 tables", entries[0]["message"])
	assert.Equal(t, "provider openai answered", entries[1]["message"])
	assert.Equal(t, "dropped statement 1", entries[2]["message"])
	assert.Equal(t, "refresh failed after 3s", entries[3]["message"])

	// Debug level turns on caller annotation
	assert.Contains(t, entries[0]["caller"], "logger_test.go")
}

func TestLoggerErrorWithErr(t *testing.T) {
	logger, buf := jsonLogger("info")

	logger.ErrorWithErr("execution failed", errors.New("syntax error"))

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "syntax error", entries[0]["error"])
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	logger.WithField("table", "posts").Info("fallback synthesized")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "fallback synthesized")
	assert.Contains(t, out, `"table": "posts"`)
}

func TestGlobalLoggerDefaultsToNop(t *testing.T) {
	// Must not panic before InitializeLogger runs
	Debugf("x %d", 1)
	WithField("k", "v").Info("ignored")
	WithError(errors.New("e")).Warn("ignored")
}

func TestSetLogger(t *testing.T) {
	previous := GetLogger()
	t.Cleanup(func() { SetLogger(previous) })

	logger, buf := jsonLogger("info")
	SetLogger(logger)
	SetLogger(nil)

	Infof("hello %s", "world")
	WithFields(map[string]any{"a": 1}).Info("with fields")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "hello world", entries[0]["message"])
}

func TestLoggerMiddleware(t *testing.T) {
	previous := GetLogger()
	t.Cleanup(func() { SetLogger(previous) })

	logger, buf := jsonLogger("debug")
	SetLogger(logger)

	require.NoError(t, LoggerMiddleware("build_schema", func() error { return nil }))

	err := LoggerMiddleware("refresh", func() error { return errors.New("db down") })
	require.Error(t, err)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 4)
	assert.Equal(t, "build_schema", entries[0]["operation"])
	assert.Equal(t, "Operation completed successfully", entries[1]["message"])
	assert.Equal(t, "Operation failed", entries[3]["message"])
	assert.Equal(t, "db down", entries[3]["error"])
}
