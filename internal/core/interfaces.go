// Package core defines the core business logic and interfaces for the avatar service.
package core

import (
	"context"
	"errors"
	"fmt"
)

// Weight bounds for the generation parameters. The model treats weights as
// multipliers, with 1.0 meaning "as trained".
const (
	MaxWeight          = 10.0
	MinFaceExpandRatio = 1.0
)

var (
	// ErrPoseWeightRange indicates that the pose weight is out of the valid range.
	ErrPoseWeightRange = errors.New("pose weight must be between 0.0 and 10.0")
	// ErrFaceWeightRange indicates that the face weight is out of the valid range.
	ErrFaceWeightRange = errors.New("face weight must be between 0.0 and 10.0")
	// ErrLipWeightRange indicates that the lip weight is out of the valid range.
	ErrLipWeightRange = errors.New("lip weight must be between 0.0 and 10.0")
	// ErrFaceExpandRatioRange indicates that the face expand ratio is below 1.0.
	ErrFaceExpandRatioRange = errors.New("face expand ratio must be >= 1.0")
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// GenerationParams holds the per-job tuning knobs forwarded to the model.
// A field left at zero means "not provided" and takes the configured default,
// so an explicit 0.0 weight cannot be requested.
type GenerationParams struct {
	PoseWeight      float64
	FaceWeight      float64
	LipWeight       float64
	FaceExpandRatio float64
}

// Merge fills every unset field from defaults, so callers can override a
// single weight without restating the rest.
func (p GenerationParams) Merge(defaults GenerationParams) GenerationParams {
	if p.PoseWeight == 0 {
		p.PoseWeight = defaults.PoseWeight
	}

	if p.FaceWeight == 0 {
		p.FaceWeight = defaults.FaceWeight
	}

	if p.LipWeight == 0 {
		p.LipWeight = defaults.LipWeight
	}

	if p.FaceExpandRatio == 0 {
		p.FaceExpandRatio = defaults.FaceExpandRatio
	}

	return p
}

// Validate ensures the parameters contain valid and safe values before they
// are turned into command-line arguments.
func (p GenerationParams) Validate() error {
	if p.PoseWeight < 0.0 || p.PoseWeight > MaxWeight {
		return fmt.Errorf("%w: got %f", ErrPoseWeightRange, p.PoseWeight)
	}

	if p.FaceWeight < 0.0 || p.FaceWeight > MaxWeight {
		return fmt.Errorf("%w: got %f", ErrFaceWeightRange, p.FaceWeight)
	}

	if p.LipWeight < 0.0 || p.LipWeight > MaxWeight {
		return fmt.Errorf("%w: got %f", ErrLipWeightRange, p.LipWeight)
	}

	if p.FaceExpandRatio < MinFaceExpandRatio {
		return fmt.Errorf("%w: got %f", ErrFaceExpandRatioRange, p.FaceExpandRatio)
	}

	return nil
}

// VideoGenerator defines the interface for a talking-head video generation engine.
type VideoGenerator interface {
	Generate(ctx context.Context, imagePath, audioPath, outputPath string, params GenerationParams) error
	Defaults() GenerationParams
	Health() error
}
