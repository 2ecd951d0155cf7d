package logs

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_FansOut(t *testing.T) {
	Level.Set(slog.LevelInfo)
	t.Cleanup(func() { Level.Set(slog.LevelInfo) })

	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "atelier.log")
	logger, closer, err := New(&buf, file)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("committed", "seq", 7)
	require.NoError(t, closer.Close())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "seq=7")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"seq":7`)
	assert.Contains(t, string(data), `"msg":"committed"`)
}
