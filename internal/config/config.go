// Package config provides the configuration structure for the avatar-service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied to unset fields. The engine defaults mirror the values the
// inference script was tuned with.
const (
	DefaultPythonBinary            = "python"
	DefaultFFmpegBinary            = "ffmpeg"
	DefaultFFprobeBinary           = "ffprobe"
	DefaultSampleRate              = 16000
	DefaultChannels                = 1
	DefaultCodec                   = "pcm_s16le"
	DefaultProbeTimeoutSeconds     = 30
	DefaultTranscodeTimeoutSeconds = 60
	DefaultInferenceTimeoutSeconds = 600
	DefaultMinOutputBytes          = 10000
	DefaultFetchTimeoutSeconds     = 120
	DefaultMaxDownloadBytes        = 256 << 20
	DefaultHTTPPort                = 8080
	DefaultMaxBodyBytes            = 128 << 20
	DefaultPoseWeight              = 1.0
	DefaultFaceWeight              = 1.0
	DefaultLipWeight               = 1.0
	DefaultFaceExpandRatio         = 1.2
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                   string `toml:"url"`
	VideoStreamName       string `toml:"video_stream_name"`
	VideoConsumerName     string `toml:"video_consumer_name"`
	VideoRequestedSubject string `toml:"video_requested_subject"`
	VideoCreatedSubject   string `toml:"video_created_subject"`
	ArtifactBucket        string `toml:"artifact_object_store_bucket"`
}

// EngineConfig holds the configuration for the external inference engine.
type EngineConfig struct {
	PythonBinary    string  `toml:"python_binary"`
	ScriptPath      string  `toml:"script_path"`
	HomeDir         string  `toml:"home_dir"`
	PoseWeight      float64 `toml:"pose_weight"`
	FaceWeight      float64 `toml:"face_weight"`
	LipWeight       float64 `toml:"lip_weight"`
	FaceExpandRatio float64 `toml:"face_expand_ratio"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	MinOutputBytes  int64   `toml:"min_output_bytes"`
	PresetsPath     string  `toml:"presets_path"`
}

// MediaConfig holds the configuration for the external media tools.
type MediaConfig struct {
	FFmpegBinary            string `toml:"ffmpeg_binary"`
	FFprobeBinary           string `toml:"ffprobe_binary"`
	SampleRate              int    `toml:"sample_rate"`
	Channels                int    `toml:"channels"`
	Codec                   string `toml:"codec"`
	ProbeTimeoutSeconds     int    `toml:"probe_timeout_seconds"`
	TranscodeTimeoutSeconds int    `toml:"transcode_timeout_seconds"`
}

// FetchConfig holds the configuration for remote input downloads.
type FetchConfig struct {
	TimeoutSeconds   int   `toml:"timeout_seconds"`
	MaxDownloadBytes int64 `toml:"max_download_bytes"`
}

// HTTPConfig holds the configuration for the synchronous HTTP API.
type HTTPConfig struct {
	Enabled      bool   `toml:"enabled"`
	Address      string `toml:"address"`
	Port         int    `toml:"port"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	WorkDir     string `toml:"work_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS   NATSConfig   `toml:"nats"`
	Engine EngineConfig `toml:"engine"`
	Media  MediaConfig  `toml:"media"`
	Fetch  FetchConfig  `toml:"fetch"`
	HTTP   HTTPConfig   `toml:"http"`
	Paths  PathsConfig  `toml:"paths"`
}

// Load loads the configuration for the avatar-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset fields with their default values.
func (c *Config) ApplyDefaults() {
	applyEngineDefaults(&c.Engine)
	applyMediaDefaults(&c.Media)

	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = DefaultFetchTimeoutSeconds
	}

	if c.Fetch.MaxDownloadBytes <= 0 {
		c.Fetch.MaxDownloadBytes = DefaultMaxDownloadBytes
	}

	if c.HTTP.Port <= 0 {
		c.HTTP.Port = DefaultHTTPPort
	}

	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

func applyEngineDefaults(e *EngineConfig) {
	if e.PythonBinary == "" {
		e.PythonBinary = DefaultPythonBinary
	}

	if e.TimeoutSeconds <= 0 {
		e.TimeoutSeconds = DefaultInferenceTimeoutSeconds
	}

	if e.MinOutputBytes <= 0 {
		e.MinOutputBytes = DefaultMinOutputBytes
	}

	if e.PoseWeight == 0 {
		e.PoseWeight = DefaultPoseWeight
	}

	if e.FaceWeight == 0 {
		e.FaceWeight = DefaultFaceWeight
	}

	if e.LipWeight == 0 {
		e.LipWeight = DefaultLipWeight
	}

	if e.FaceExpandRatio == 0 {
		e.FaceExpandRatio = DefaultFaceExpandRatio
	}
}

func applyMediaDefaults(m *MediaConfig) {
	if m.FFmpegBinary == "" {
		m.FFmpegBinary = DefaultFFmpegBinary
	}

	if m.FFprobeBinary == "" {
		m.FFprobeBinary = DefaultFFprobeBinary
	}

	if m.SampleRate <= 0 {
		m.SampleRate = DefaultSampleRate
	}

	if m.Channels <= 0 {
		m.Channels = DefaultChannels
	}

	if m.Codec == "" {
		m.Codec = DefaultCodec
	}

	if m.ProbeTimeoutSeconds <= 0 {
		m.ProbeTimeoutSeconds = DefaultProbeTimeoutSeconds
	}

	if m.TranscodeTimeoutSeconds <= 0 {
		m.TranscodeTimeoutSeconds = DefaultTranscodeTimeoutSeconds
	}
}
