package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Limits for validating a WaveSpec.
const (
	MaxSampleRate = 192000
	MaxChannels   = 8
)

// stderrTailBytes caps how much ffmpeg stderr ends up in error messages.
const stderrTailBytes = 1000

var (
	// ErrInvalidWaveSpec indicates that the target format settings are invalid.
	ErrInvalidWaveSpec = errors.New("invalid wave spec")
	// ErrTranscodeTimeout indicates that ffmpeg exceeded its time budget.
	ErrTranscodeTimeout = errors.New("transcode timed out")
	// ErrEmptyTranscodeOutput indicates that ffmpeg exited cleanly but wrote nothing.
	ErrEmptyTranscodeOutput = errors.New("transcode produced an empty output file")
)

// WaveSpec describes the waveform format the inference engine expects.
type WaveSpec struct {
	SampleRate int
	Channels   int
	Codec      string
}

// DefaultWaveSpec returns the format the model was trained against:
// 16 kHz mono signed 16-bit PCM.
func DefaultWaveSpec() WaveSpec {
	return WaveSpec{
		SampleRate: 16000,
		Channels:   1,
		Codec:      "pcm_s16le",
	}
}

// Validate checks that the spec is within reasonable bounds.
func (s WaveSpec) Validate() error {
	if s.SampleRate <= 0 || s.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: sample rate must be between 1 and %d Hz", ErrInvalidWaveSpec, MaxSampleRate)
	}

	if s.Channels <= 0 || s.Channels > MaxChannels {
		return fmt.Errorf("%w: channels must be between 1 and %d", ErrInvalidWaveSpec, MaxChannels)
	}

	if s.Codec == "" {
		return fmt.Errorf("%w: codec cannot be empty", ErrInvalidWaveSpec)
	}

	return nil
}

// Transcoder normalizes driving audio to a fixed waveform format by shelling
// out to ffmpeg.
type Transcoder struct {
	binary  string
	spec    WaveSpec
	timeout time.Duration
}

// NewTranscoder creates a Transcoder targeting the given wave spec.
func NewTranscoder(binary string, spec WaveSpec, timeout time.Duration) (*Transcoder, error) {
	err := spec.Validate()
	if err != nil {
		return nil, err
	}

	return &Transcoder{
		binary:  binary,
		spec:    spec,
		timeout: timeout,
	}, nil
}

// NeedsTranscode reports whether the file at path must be normalized before
// inference. WAV input passes through untouched.
func NeedsTranscode(path string) bool {
	return strings.ToLower(filepath.Ext(path)) != ".wav"
}

// ToWave converts the input file into the target waveform format.
func (t *Transcoder) ToWave(ctx context.Context, inputPath, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-loglevel", "error",
		"-i", inputPath,
		"-ar", strconv.Itoa(t.spec.SampleRate),
		"-ac", strconv.Itoa(t.spec.Channels),
		"-acodec", t.spec.Codec,
		outputPath,
	}

	// #nosec G204 -- the binary is operator-configured and both paths live in the job workspace
	cmd := exec.CommandContext(ctx, t.binary, args...)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTranscodeTimeout, t.timeout)
		}

		return fmt.Errorf("ffmpeg failed: %w - stderr: %s", err, tail(stderr.String(), stderrTailBytes))
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil {
		return fmt.Errorf("transcode output missing at %s: %w", outputPath, statErr)
	}

	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyTranscodeOutput, outputPath)
	}

	return nil
}

// tail returns the trailing n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[len(s)-n:]
}
