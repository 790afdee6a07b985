// Package generation orchestrates the talking-head pipeline: input
// acquisition, duration probe, audio normalization, inference, and output
// packaging. The worker and the HTTP API both drive this one service.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/book-expert/avatar-service/internal/core"
	"github.com/book-expert/avatar-service/internal/fetch"
	"github.com/book-expert/avatar-service/internal/fileutil"
	"github.com/book-expert/avatar-service/internal/media"
	"github.com/book-expert/avatar-service/internal/metrics"
	"github.com/book-expert/avatar-service/internal/workspace"
	"github.com/book-expert/logger"
)

const filePermissions = 0o600

var (
	// ErrNoImageSource indicates that the request named no source image.
	ErrNoImageSource = errors.New("no image provided: image_base64, image_url or image_key required")
	// ErrNoAudioSource indicates that the request named no driving audio.
	ErrNoAudioSource = errors.New("no audio provided: audio_base64, audio_url or audio_key required")
	// ErrMultipleImageSources indicates that more than one image source was given.
	ErrMultipleImageSources = errors.New("exactly one image source must be provided")
	// ErrMultipleAudioSources indicates that more than one audio source was given.
	ErrMultipleAudioSources = errors.New("exactly one audio source must be provided")
	// ErrNoObjectStore indicates a key-based input without a configured store.
	ErrNoObjectStore = errors.New("object store keys are not supported without a store")
	// ErrUnsupportedImageType indicates a named image input with an extension
	// the model does not accept.
	ErrUnsupportedImageType = errors.New("unsupported image type: .jpg, .jpeg or .png required")
)

// Request describes one generation job. Each input is provided as exactly one
// of an inline base64 payload, a downloadable URL, or an object store key.
type Request struct {
	ImageBase64 string
	ImageURL    string
	ImageKey    string

	AudioBase64 string
	AudioURL    string
	AudioKey    string

	// Params tunes the model run. Unset fields are filled from the
	// configured engine defaults.
	Params core.GenerationParams
}

// Result is a finished job: the raw video plus its probed metadata.
type Result struct {
	Video           []byte
	DurationSeconds float64
	SizeBytes       int64
}

// Deps wires the collaborators of the pipeline.
type Deps struct {
	Fetcher    *fetch.Client
	Store      core.ObjectStore
	Prober     *media.Prober
	Transcoder *media.Transcoder
	Generator  core.VideoGenerator
	Metrics    *metrics.Metrics
	WorkDir    string
	Log        *logger.Logger
}

// Service runs generation jobs end to end inside a scoped workspace.
type Service struct {
	deps Deps
}

// New creates the pipeline service.
func New(deps Deps) (*Service, error) {
	if deps.Fetcher == nil || deps.Prober == nil || deps.Transcoder == nil ||
		deps.Generator == nil || deps.Log == nil {
		return nil, errors.New("generation service is missing a required dependency")
	}

	return &Service{deps: deps}, nil
}

// Health reports whether the engine behind the pipeline is usable.
func (s *Service) Health() error {
	return s.deps.Generator.Health()
}

// Generate runs one job. All intermediate files live in a temp workspace that
// is removed unconditionally before returning.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	params, err := s.resolveParams(req.Params)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.New(s.deps.WorkDir, s.deps.Log)
	if err != nil {
		return nil, err
	}

	defer ws.Cleanup()

	imagePath, audioPath, err := s.acquireInputs(ctx, req, ws)
	if err != nil {
		return nil, err
	}

	s.logInputs(ctx, imagePath, audioPath)

	wavPath, err := s.normalizeAudio(ctx, audioPath, ws)
	if err != nil {
		return nil, err
	}

	outputPath := ws.OutputVideo()

	inferenceStart := time.Now()

	err = s.deps.Generator.Generate(ctx, imagePath, wavPath, outputPath, params)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.InferenceDuration.Observe(time.Since(inferenceStart).Seconds())
	}

	return s.packageOutput(ctx, outputPath)
}

// resolveParams fills unset fields from the engine defaults and validates the
// outcome.
func (s *Service) resolveParams(params core.GenerationParams) (core.GenerationParams, error) {
	params = params.Merge(s.deps.Generator.Defaults())

	err := params.Validate()
	if err != nil {
		return core.GenerationParams{}, err
	}

	return params, nil
}

func (s *Service) acquireInputs(ctx context.Context, req Request, ws *workspace.Workspace) (string, string, error) {
	err := validateSources(req)
	if err != nil {
		return "", "", err
	}

	// Named image inputs are checked up front; URLs and keys without a file
	// extension pass through and are left to the model to reject.
	if name := imageName(req); fileutil.GetFileExtension(name) != "" && !fileutil.IsValidImageFile(name) {
		return "", "", fmt.Errorf("%w: got '%s'", ErrUnsupportedImageType, name)
	}

	imagePath := ws.SourceImage()

	err = s.acquire(ctx, req.ImageBase64, req.ImageURL, req.ImageKey, imagePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to acquire image: %w", err)
	}

	audioPath := ws.DrivingAudio(audioExtension(req))

	err = s.acquire(ctx, req.AudioBase64, req.AudioURL, req.AudioKey, audioPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to acquire audio: %w", err)
	}

	return imagePath, audioPath, nil
}

// acquire materializes one input at outputPath from whichever source is set.
func (s *Service) acquire(ctx context.Context, base64Payload, rawURL, key, outputPath string) error {
	switch {
	case base64Payload != "":
		return s.deps.Fetcher.SaveBase64(base64Payload, outputPath)
	case rawURL != "":
		written, err := s.deps.Fetcher.Download(ctx, rawURL, outputPath)
		if err != nil {
			return err
		}

		if s.deps.Metrics != nil {
			s.deps.Metrics.DownloadBytes.Add(float64(written))
		}

		return nil
	default:
		if s.deps.Store == nil {
			return ErrNoObjectStore
		}

		data, err := s.deps.Store.Download(ctx, key)
		if err != nil {
			return err
		}

		writeErr := os.WriteFile(outputPath, data, filePermissions)
		if writeErr != nil {
			return fmt.Errorf("failed to write object '%s' to %s: %w", key, outputPath, writeErr)
		}

		return nil
	}
}

func (s *Service) logInputs(ctx context.Context, imagePath, audioPath string) {
	imageSize := fileSize(imagePath)
	audioSize := fileSize(audioPath)

	audioDuration, err := s.deps.Prober.Duration(ctx, audioPath)
	if err != nil {
		s.deps.Log.Warn("Failed to probe driving audio duration: %v", err)

		audioDuration = 0
	}

	s.deps.Log.Info("Input ready: image=%s, audio=%s (%s)",
		fileutil.FormatFileSize(imageSize),
		fileutil.FormatFileSize(audioSize),
		fileutil.FormatDuration(audioDuration))
}

func (s *Service) normalizeAudio(ctx context.Context, audioPath string, ws *workspace.Workspace) (string, error) {
	if !media.NeedsTranscode(audioPath) {
		return audioPath, nil
	}

	wavPath := ws.NormalizedAudio()

	err := s.deps.Transcoder.ToWave(ctx, audioPath, wavPath)
	if err != nil {
		return "", fmt.Errorf("failed to normalize driving audio: %w", err)
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.TranscodesTotal.Inc()
	}

	return wavPath, nil
}

func (s *Service) packageOutput(ctx context.Context, outputPath string) (*Result, error) {
	video, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read output video: %w", err)
	}

	outputDuration, probeErr := s.deps.Prober.Duration(ctx, outputPath)
	if probeErr != nil {
		s.deps.Log.Warn("Failed to probe output duration: %v", probeErr)

		outputDuration = 0
	}

	s.deps.Log.Info("Output ready: %s (%s)",
		fileutil.FormatFileSize(int64(len(video))),
		fileutil.FormatDuration(outputDuration))

	return &Result{
		Video:           video,
		DurationSeconds: outputDuration,
		SizeBytes:       int64(len(video)),
	}, nil
}

func validateSources(req Request) error {
	imageCount := countSources(req.ImageBase64, req.ImageURL, req.ImageKey)
	if imageCount == 0 {
		return ErrNoImageSource
	}

	if imageCount > 1 {
		return ErrMultipleImageSources
	}

	audioCount := countSources(req.AudioBase64, req.AudioURL, req.AudioKey)
	if audioCount == 0 {
		return ErrNoAudioSource
	}

	if audioCount > 1 {
		return ErrMultipleAudioSources
	}

	return nil
}

func countSources(sources ...string) int {
	count := 0

	for _, source := range sources {
		if source != "" {
			count++
		}
	}

	return count
}

// imageName derives the source image file name from the URL or object key
// when one is available. Inline payloads carry no name.
func imageName(req Request) string {
	switch {
	case req.ImageURL != "":
		parsed, err := url.Parse(req.ImageURL)
		if err != nil {
			return ""
		}

		name := path.Base(parsed.Path)
		if name == "." || name == "/" {
			return ""
		}

		return name
	case req.ImageKey != "":
		return req.ImageKey
	default:
		return ""
	}
}

// audioExtension derives the driving audio file extension from the URL or
// object key when one is available. Inline payloads carry no name, so they
// fall back to the workspace default.
func audioExtension(req Request) string {
	switch {
	case req.AudioURL != "":
		parsed, err := url.Parse(req.AudioURL)
		if err != nil {
			return ""
		}

		return fileutil.GetFileExtension(path.Base(parsed.Path))
	case req.AudioKey != "":
		return fileutil.GetFileExtension(req.AudioKey)
	default:
		return ""
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.Size()
}
