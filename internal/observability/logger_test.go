package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buildwise/apiclient/v3/internal/config"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		lines = append(lines, entry)
	}
	return lines
}

func TestSetupLogger(t *testing.T) {
	t.Run("json file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "apictl.log")
		logger, err := SetupLogger(config.LogConfig{
			Level:   "warning",
			Format:  "json",
			Outputs: []string{path},
		})
		require.NoError(t, err)

		logger.Info("dropped")
		logger.Warn("session invalidated", zap.String("reason", "refresh failed"))
		require.NoError(t, logger.Sync())

		lines := readLines(t, path)
		require.Len(t, lines, 1)
		assert.Equal(t, "session invalidated", lines[0]["msg"])
		assert.Equal(t, "warn", lines[0]["level"])
		assert.Equal(t, "refresh failed", lines[0]["reason"])
	})

	t.Run("rotated file output", func(t *testing.T) {
		dir := t.TempDir()
		rotated := filepath.Join(dir, "rotated.log")
		logger, err := SetupLogger(config.LogConfig{
			Level:   "debug",
			Format:  "json",
			Outputs: []string{filepath.Join(dir, "ignored.log")},
			Rotation: config.RotationConfig{
				Enable:   true,
				Filename: rotated,
			},
		})
		require.NoError(t, err)

		logger.Debug("retrying request")
		require.NoError(t, logger.Sync())

		lines := readLines(t, rotated)
		require.Len(t, lines, 1)
		assert.Equal(t, "retrying request", lines[0]["msg"])
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := SetupLogger(config.LogConfig{Level: "loud"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("unwritable file", func(t *testing.T) {
		dir := t.TempDir()
		_, err := SetupLogger(config.LogConfig{Level: "info", Outputs: []string{dir}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open log file")
	})
}
