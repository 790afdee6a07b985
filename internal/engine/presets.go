package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/avatar-service/internal/core"
	"github.com/pelletier/go-toml/v2"
)

// ErrUnknownPreset indicates that a requested preset name is not defined.
var ErrUnknownPreset = errors.New("unknown preset")

// Presets maps named weight bundles to generation parameters, so callers can
// say "subtle" or "expressive" instead of shipping four floats.
type Presets struct {
	byName map[string]core.GenerationParams
}

type presetEntry struct {
	PoseWeight      float64 `toml:"pose_weight"`
	FaceWeight      float64 `toml:"face_weight"`
	LipWeight       float64 `toml:"lip_weight"`
	FaceExpandRatio float64 `toml:"face_expand_ratio"`
}

type presetsFile struct {
	Presets map[string]presetEntry `toml:"presets"`
}

// LoadPresets reads a TOML presets file. Every entry is validated up front so
// a broken preset fails at startup rather than mid-job.
func LoadPresets(path string) (*Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file %s: %w", path, err)
	}

	var file presetsFile

	err = toml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse presets file %s: %w", path, err)
	}

	byName := make(map[string]core.GenerationParams, len(file.Presets))

	for name, entry := range file.Presets {
		params := core.GenerationParams{
			PoseWeight:      entry.PoseWeight,
			FaceWeight:      entry.FaceWeight,
			LipWeight:       entry.LipWeight,
			FaceExpandRatio: entry.FaceExpandRatio,
		}

		validateErr := params.Validate()
		if validateErr != nil {
			return nil, fmt.Errorf("preset '%s' is invalid: %w", name, validateErr)
		}

		byName[name] = params
	}

	return &Presets{byName: byName}, nil
}

// Get returns the parameters for a named preset.
func (p *Presets) Get(name string) (core.GenerationParams, error) {
	params, ok := p.byName[name]
	if !ok {
		return core.GenerationParams{}, fmt.Errorf("%w: '%s'", ErrUnknownPreset, name)
	}

	return params, nil
}

// Names returns the defined preset names, for diagnostics.
func (p *Presets) Names() []string {
	names := make([]string, 0, len(p.byName))
	for name := range p.byName {
		names = append(names, name)
	}

	return names
}
