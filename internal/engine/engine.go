// Package engine invokes the external talking-head inference script.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/book-expert/avatar-service/internal/core"
	"github.com/book-expert/logger"
)

// outputTailBytes caps how much of the script's stdout/stderr ends up in
// error messages, matching what is useful in a log line.
const outputTailBytes = 1000

var (
	// ErrScriptPathEmpty indicates that no inference script was configured.
	ErrScriptPathEmpty = errors.New("inference script path cannot be empty")
	// ErrInferenceTimeout indicates that the model run exceeded its time budget.
	ErrInferenceTimeout = errors.New("inference timed out")
	// ErrOutputMissing indicates that the script exited cleanly but produced no video.
	ErrOutputMissing = errors.New("inference produced no output video")
	// ErrOutputTooSmall indicates that the produced video is below the minimum size.
	ErrOutputTooSmall = errors.New("inference output below minimum size")
)

// Config holds the static configuration of the inference engine.
type Config struct {
	PythonBinary   string
	ScriptPath     string
	HomeDir        string
	Timeout        time.Duration
	MinOutputBytes int64
	Defaults       core.GenerationParams
}

// Invoker implements core.VideoGenerator by running the inference script as a
// subprocess. The model itself is a black box; the invoker only builds the
// command line, enforces the timeout, and validates the produced file.
type Invoker struct {
	config Config
	log    *logger.Logger
}

// New creates a new Invoker.
func New(cfg Config, log *logger.Logger) (*Invoker, error) {
	if cfg.ScriptPath == "" {
		return nil, ErrScriptPathEmpty
	}

	return &Invoker{
		config: cfg,
		log:    log,
	}, nil
}

// Defaults returns the configured default generation parameters.
func (i *Invoker) Defaults() core.GenerationParams {
	return i.config.Defaults
}

// Health reports whether the inference script is present on disk.
func (i *Invoker) Health() error {
	_, err := os.Stat(i.config.ScriptPath)
	if err != nil {
		return fmt.Errorf("inference script not available at %s: %w", i.config.ScriptPath, err)
	}

	return nil
}

// Generate runs the model against a source image and a normalized driving
// audio file, writing the video to outputPath.
func (i *Invoker) Generate(
	ctx context.Context,
	imagePath, audioPath, outputPath string,
	params core.GenerationParams,
) error {
	ctx, cancel := context.WithTimeout(ctx, i.config.Timeout)
	defer cancel()

	args := i.buildArgs(imagePath, audioPath, outputPath, params)

	// #nosec G204 -- arguments are validated via core.GenerationParams validation
	cmd := exec.CommandContext(ctx, i.config.PythonBinary, args...)
	cmd.Dir = i.config.HomeDir
	cmd.Env = append(os.Environ(), "PYTHONPATH="+i.config.HomeDir+":"+os.Getenv("PYTHONPATH"))

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	i.log.Info("Running inference: %s %v", i.config.PythonBinary, args)

	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrInferenceTimeout, i.config.Timeout)
		}

		return fmt.Errorf("inference script failed: %w - stdout: %s - stderr: %s",
			err, tail(stdout.String(), outputTailBytes), tail(stderr.String(), outputTailBytes))
	}

	return i.validateOutput(outputPath)
}

func (i *Invoker) buildArgs(imagePath, audioPath, outputPath string, params core.GenerationParams) []string {
	return []string{
		i.config.ScriptPath,
		"--source_image", imagePath,
		"--driving_audio", audioPath,
		"--output", outputPath,
		"--pose_weight", formatWeight(params.PoseWeight),
		"--face_weight", formatWeight(params.FaceWeight),
		"--lip_weight", formatWeight(params.LipWeight),
		"--face_expand_ratio", formatWeight(params.FaceExpandRatio),
	}
}

func (i *Invoker) validateOutput(outputPath string) error {
	info, err := os.Stat(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: expected %s", ErrOutputMissing, outputPath)
		}

		return fmt.Errorf("failed to stat inference output %s: %w", outputPath, err)
	}

	if info.Size() <= i.config.MinOutputBytes {
		return fmt.Errorf("%w: got %d bytes, need more than %d",
			ErrOutputTooSmall, info.Size(), i.config.MinOutputBytes)
	}

	return nil
}

func formatWeight(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// tail returns the trailing n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[len(s)-n:]
}
