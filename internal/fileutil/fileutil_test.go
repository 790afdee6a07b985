// Package fileutil_test tests the file and path utilities.
package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/avatar-service/internal/fileutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "a", "b", "c")

	err := fileutil.EnsureDir(target)
	require.NoError(t, err)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Second call on an existing directory is a no-op.
	err = fileutil.EnsureDir(target)
	require.NoError(t, err)
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "45.2s", fileutil.FormatDuration(45.2))
	assert.Equal(t, "5m 30.5s", fileutil.FormatDuration(330.5))
	assert.Equal(t, "1h 15m", fileutil.FormatDuration(4500))
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 B", fileutil.FormatFileSize(512))
	assert.Equal(t, "1.5 KB", fileutil.FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", fileutil.FormatFileSize(2<<20))
	assert.Equal(t, "3.0 GB", fileutil.FormatFileSize(3<<30))
}

func TestIsValidAudioFile(t *testing.T) {
	t.Parallel()

	assert.True(t, fileutil.IsValidAudioFile("speech.mp3"))
	assert.True(t, fileutil.IsValidAudioFile("speech.WAV"))
	assert.True(t, fileutil.IsValidAudioFile("track.flac"))
	assert.False(t, fileutil.IsValidAudioFile("movie.mp4"))
	assert.False(t, fileutil.IsValidAudioFile("noext"))
}

func TestIsValidImageFile(t *testing.T) {
	t.Parallel()

	assert.True(t, fileutil.IsValidImageFile("portrait.jpg"))
	assert.True(t, fileutil.IsValidImageFile("portrait.JPEG"))
	assert.True(t, fileutil.IsValidImageFile("portrait.png"))
	assert.False(t, fileutil.IsValidImageFile("portrait.gif"))
}

func TestGetFileExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".mp3", fileutil.GetFileExtension("https-download.MP3"))
	assert.Equal(t, "", fileutil.GetFileExtension("noext"))
}
