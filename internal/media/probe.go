// Package media wraps the external ffmpeg and ffprobe tools used to inspect
// and normalize the driving audio.
package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Prober reads duration metadata from media files by shelling out to ffprobe.
type Prober struct {
	binary  string
	timeout time.Duration
}

// NewProber creates a Prober for the given ffprobe binary.
func NewProber(binary string, timeout time.Duration) *Prober {
	return &Prober{
		binary:  binary,
		timeout: timeout,
	}
}

// Duration returns the duration of the media file at path, in seconds.
// Callers treat probe failures as non-fatal and fall back to 0.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// #nosec G204 -- the binary is operator-configured and path lives in the job workspace
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	return ParseDuration(string(output))
}

// ParseDuration parses ffprobe's plain-text duration output.
func ParseDuration(raw string) (float64, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe duration %q: %w", raw, err)
	}

	return seconds, nil
}
