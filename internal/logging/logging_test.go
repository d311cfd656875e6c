package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{" Error ", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("DEBUG", "")
	t.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, LevelWarn, levelFromEnv())

	t.Setenv("DEBUG", "yes")
	assert.Equal(t, LevelDebug, levelFromEnv(), "DEBUG wins over LOG_LEVEL")
}

func TestSetupTeesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "logs", "app.log")

	logger, closer, err := Setup(Options{Level: "info", File: logFile, Console: &console})
	require.NoError(t, err)

	Info("scan %d started", 7)
	Debug("hidden at info level")
	logger.Warn("direct entry")

	require.NoError(t, closer())

	out := console.String()
	assert.Contains(t, out, "scan 7 started")
	assert.NotContains(t, out, "hidden at info level")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2, "log file: %q", data)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry), "log file lines are JSON")
	assert.Equal(t, "direct entry", entry["msg"])
}

func TestSetLevel(t *testing.T) {
	var console bytes.Buffer
	_, _, err := Setup(Options{Level: "error", Console: &console})
	require.NoError(t, err)
	assert.Equal(t, LevelError, GetLevel())
	assert.False(t, IsDebugEnabled())

	SetLevel(LevelDebug)
	assert.True(t, IsDebugEnabled())
	Debug("now visible")
	assert.Contains(t, console.String(), "now visible")
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(99), "unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.String())
		})
	}
}
