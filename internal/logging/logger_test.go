package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerDefaultsToStderr(t *testing.T) {
	logger := NewLogger(nil)
	require.NotNil(t, logger)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Info("should not appear")
	logger.Warn("should appear")

	output := buf.String()
	assert.NotContains(t, output, "should not appear")
	assert.Contains(t, output, "should appear")
}

func TestFormattedArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("serving request", "method", "GET", "path", "/index.html")
	assert.Contains(t, buf.String(), "method=GET path=/index.html")
}

func TestFileRotationCreatesDatedFile(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(&Config{Level: LevelInfo, Dir: dir, Suffix: ".log"})
	logger.Info("hello")
	logger.Close()

	expected := time.Now().Format("2006_01_02") + ".log"
	_, err := os.Stat(filepath.Join(dir, expected))
	require.NoError(t, err)
}

func TestAsyncLoggerDrainsQueue(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(&Config{Level: LevelInfo, Dir: dir, Suffix: ".log", Async: true, QueueSize: 4})

	for i := 0; i < 10; i++ {
		logger.Infof("line %d", i)
	}
	logger.Close()

	expected := time.Now().Format("2006_01_02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, expected))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "line 0"))
	assert.True(t, strings.Contains(string(data), "line 9"))
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Debug("debug message", "key", "value")
	assert.Contains(t, buf.String(), "debug message")
	assert.Contains(t, buf.String(), "key=value")

	buf.Reset()
	Error("error message")
	assert.Contains(t, buf.String(), "error message")
}
