// Package workspace_test tests the per-job temporary directory.
package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/avatar-service/internal/workspace"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "workspace-test.log")
	require.NoError(t, err)

	return log
}

func TestNewAndCleanup(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	ws, err := workspace.New(base, newTestLogger(t))
	require.NoError(t, err)

	info, err := os.Stat(ws.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, base, filepath.Dir(ws.Root()))

	// Files inside the workspace disappear with it.
	err = os.WriteFile(ws.SourceImage(), []byte("img"), 0o600)
	require.NoError(t, err)

	ws.Cleanup()

	_, statErr := os.Stat(ws.Root())
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewCreatesMissingBase(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "jobs", "work")

	ws, err := workspace.New(base, newTestLogger(t))
	require.NoError(t, err)

	defer ws.Cleanup()

	assert.Equal(t, base, filepath.Dir(ws.Root()))
}

func TestCanonicalPaths(t *testing.T) {
	t.Parallel()

	ws, err := workspace.New(t.TempDir(), newTestLogger(t))
	require.NoError(t, err)

	defer ws.Cleanup()

	assert.Equal(t, filepath.Join(ws.Root(), "source.jpg"), ws.SourceImage())
	assert.Equal(t, filepath.Join(ws.Root(), "audio_16k.wav"), ws.NormalizedAudio())
	assert.Equal(t, filepath.Join(ws.Root(), "output.mp4"), ws.OutputVideo())
}

func TestDrivingAudioExtension(t *testing.T) {
	t.Parallel()

	ws, err := workspace.New(t.TempDir(), newTestLogger(t))
	require.NoError(t, err)

	defer ws.Cleanup()

	assert.Equal(t, filepath.Join(ws.Root(), "audio.wav"), ws.DrivingAudio(".wav"))
	assert.Equal(t, filepath.Join(ws.Root(), "audio.mp3"), ws.DrivingAudio(""))
	// Unknown extensions fall back to .mp3.
	assert.Equal(t, filepath.Join(ws.Root(), "audio.mp3"), ws.DrivingAudio(".exe"))
}
