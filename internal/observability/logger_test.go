package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/shroud/internal/config"
)

// initToBuffer initializes the global logger against an in-memory
// writer so assertions never race stdout.
func initToBuffer(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitializeLogger(t *testing.T) {
	t.Run("should initialize console logger with colors", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors: config.ColorConfig{
				Info: "green",
			},
		})

		GetLogger().Info("This is a test message.")

		output := buf.String()
		assert.Contains(t, output, "INFO", "Output should contain the log level")
		assert.Contains(t, output, "This is a test message.", "Output should contain the message")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, colorReset, "Output should contain the reset color code")
		assert.Contains(t, output, "TestService.", "Console names carry the dot suffix")
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

		var logEntry map[string]interface{}
		err := json.Unmarshal(buf.Bytes(), &logEntry)
		require.NoError(t, err, "Log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("should respect the configured level", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:  "warn",
			Format: "json",
		})

		GetLogger().Info("too quiet")
		GetLogger().Warn("loud enough")

		assert.NotContains(t, buf.String(), "too quiet")
		assert.Contains(t, buf.String(), "loud enough")
	})

	t.Run("should write to a log file if configured", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "shroud-test.log")

		buf := initToBuffer(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		})
		_ = buf

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.", "Log file should contain the message")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"})

		// Second initialization must be ignored.
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		logger := GetLogger()

		logger.Info("test")
		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.False(t, strings.Contains(buf.String(), "Second"))
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		initToBuffer(t, config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})

		logger := GetLogger()
		assert.Equal(t, globalLogger.Load(), logger)
	})
}

func TestColorMap(t *testing.T) {
	t.Run("unknown color names fall back to plain levels", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:  "info",
			Format: "console",
			Colors: config.ColorConfig{Info: "chartreuse"},
		})

		GetLogger().Info("plain")
		assert.Contains(t, buf.String(), "INFO")
		assert.NotContains(t, buf.String(), colorGreen)
	})
}
