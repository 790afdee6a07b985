// Package workspace manages the scoped temporary directory for a single job.
// Every intermediate file of a generation job lives inside one workspace, and
// the whole directory is removed unconditionally when the job ends.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/avatar-service/internal/fileutil"
	"github.com/book-expert/logger"
)

// Canonical file names inside a workspace.
const (
	sourceImageName      = "source.jpg"
	drivingAudioBaseName = "audio"
	defaultAudioExt      = ".mp3"
	normalizedAudioName  = "audio_16k.wav"
	outputVideoName      = "output.mp4"
)

// Workspace is a per-job temporary directory.
type Workspace struct {
	root string
	log  *logger.Logger
}

// New creates a fresh workspace under baseDir. An empty baseDir falls back to
// the system temp directory.
func New(baseDir string, log *logger.Logger) (*Workspace, error) {
	if baseDir != "" {
		err := fileutil.EnsureDir(baseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare workspace base: %w", err)
		}
	}

	root, err := os.MkdirTemp(baseDir, "avatar-job-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return &Workspace{
		root: root,
		log:  log,
	}, nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// SourceImage returns the path for the source portrait image.
func (w *Workspace) SourceImage() string {
	return filepath.Join(w.root, sourceImageName)
}

// DrivingAudio returns the path for the driving audio as acquired. ext must
// include the leading dot; an empty or unrecognized ext defaults to .mp3.
func (w *Workspace) DrivingAudio(ext string) string {
	if ext == "" || !fileutil.IsValidAudioFile(drivingAudioBaseName+ext) {
		ext = defaultAudioExt
	}

	return filepath.Join(w.root, drivingAudioBaseName+ext)
}

// NormalizedAudio returns the path for the transcoded waveform file.
func (w *Workspace) NormalizedAudio() string {
	return filepath.Join(w.root, normalizedAudioName)
}

// OutputVideo returns the path the engine writes the generated video to.
func (w *Workspace) OutputVideo() string {
	return filepath.Join(w.root, outputVideoName)
}

// Cleanup removes the workspace and everything in it. Removal failures are
// logged, never fatal.
func (w *Workspace) Cleanup() {
	err := os.RemoveAll(w.root)
	if err != nil {
		w.log.Warn("Failed to remove workspace '%s': %v", w.root, err)
	}
}
