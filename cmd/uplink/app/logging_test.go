package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer

	logger, closer := NewLogger(&Settings{LogLevel: slog.LevelInfo}, &console)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("shown")

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
}

func TestNewLogger_FileReceivesWarnings(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "drone.log")

	logger, closer := NewLogger(&Settings{
		LogLevel:      slog.LevelInfo,
		LogFile:       path,
		LogFileLevel:  slog.LevelWarn,
		LogMaxSizeMB:  1,
		LogMaxBackups: 1,
	}, &console)

	logger = logger.With(slog.String("component", "sampler"))
	logger.Info("cycle completed")
	logger.Warn("mode not found", slog.String("context", "mode"))
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "cycle completed")
	assert.Contains(t, console.String(), "mode not found")

	p, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(p), "cycle completed")
	assert.Contains(t, string(p), `msg="mode not found"`)
	assert.Contains(t, string(p), "context=mode")
	assert.Contains(t, string(p), "component=sampler")
}

func TestFanoutHandler_Enabled(t *testing.T) {
	var a, b bytes.Buffer
	h := newFanoutHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)

	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))

	slog.New(h).WithGroup("g").Info("only b", slog.Int("n", 1))
	assert.Empty(t, a.String())
	assert.Contains(t, b.String(), "g.n=1")
}
