// Package engine_test tests the inference invoker.
package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/avatar-service/internal/core"
	"github.com/book-expert/avatar-service/internal/engine"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "engine-test.log")
	require.NoError(t, err)

	return log
}

func testParams() core.GenerationParams {
	return core.GenerationParams{
		PoseWeight:      1.0,
		FaceWeight:      1.0,
		LipWeight:       1.0,
		FaceExpandRatio: 1.2,
	}
}

func TestNewRequiresScriptPath(t *testing.T) {
	t.Parallel()

	_, err := engine.New(engine.Config{
		PythonBinary:   "python",
		ScriptPath:     "",
		HomeDir:        "",
		Timeout:        time.Second,
		MinOutputBytes: 10000,
		Defaults:       testParams(),
	}, newTestLogger(t))
	require.ErrorIs(t, err, engine.ErrScriptPathEmpty)
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	invoker, err := engine.New(engine.Config{
		PythonBinary:   "python",
		ScriptPath:     "scripts/inference.py",
		HomeDir:        "",
		Timeout:        time.Second,
		MinOutputBytes: 10000,
		Defaults:       testParams(),
	}, newTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, testParams(), invoker.Defaults())
}

func TestHealth(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "inference.py")

	invoker, err := engine.New(engine.Config{
		PythonBinary:   "python",
		ScriptPath:     scriptPath,
		HomeDir:        dir,
		Timeout:        time.Second,
		MinOutputBytes: 10000,
		Defaults:       testParams(),
	}, newTestLogger(t))
	require.NoError(t, err)

	// Script missing.
	require.Error(t, invoker.Health())

	err = os.WriteFile(scriptPath, []byte("# stub"), 0o600)
	require.NoError(t, err)

	require.NoError(t, invoker.Health())
}

func TestGenerateMissingBinary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	invoker, err := engine.New(engine.Config{
		PythonBinary:   "/nonexistent/python",
		ScriptPath:     filepath.Join(dir, "inference.py"),
		HomeDir:        dir,
		Timeout:        time.Second,
		MinOutputBytes: 10000,
		Defaults:       testParams(),
	}, newTestLogger(t))
	require.NoError(t, err)

	err = invoker.Generate(
		context.Background(),
		filepath.Join(dir, "source.jpg"),
		filepath.Join(dir, "audio.wav"),
		filepath.Join(dir, "output.mp4"),
		testParams(),
	)
	require.Error(t, err)
}

func TestGenerateValidatesOutputSize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outputPath := filepath.Join(dir, "output.mp4")

	// "true" exits 0 without writing the output file.
	invoker, err := engine.New(engine.Config{
		PythonBinary:   "true",
		ScriptPath:     filepath.Join(dir, "inference.py"),
		HomeDir:        dir,
		Timeout:        5 * time.Second,
		MinOutputBytes: 10000,
		Defaults:       testParams(),
	}, newTestLogger(t))
	require.NoError(t, err)

	err = invoker.Generate(
		context.Background(),
		filepath.Join(dir, "source.jpg"),
		filepath.Join(dir, "audio.wav"),
		outputPath,
		testParams(),
	)
	require.ErrorIs(t, err, engine.ErrOutputMissing)

	// An undersized output is rejected as well.
	err = os.WriteFile(outputPath, []byte("tiny"), 0o600)
	require.NoError(t, err)

	err = invoker.Generate(
		context.Background(),
		filepath.Join(dir, "source.jpg"),
		filepath.Join(dir, "audio.wav"),
		outputPath,
		testParams(),
	)
	require.ErrorIs(t, err, engine.ErrOutputTooSmall)
}
