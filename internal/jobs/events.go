// Package jobs defines the NATS event payloads exchanged by the avatar service.
package jobs

import "github.com/book-expert/events"

// PortraitVideoRequestedEvent asks the service to animate a source portrait
// with a driving audio track. Each input is provided either as an object
// store key or as a downloadable URL.
type PortraitVideoRequestedEvent struct {
	Header events.EventHeader `json:"header"`

	ImageKey string `json:"image_key,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	AudioKey string `json:"audio_key,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`

	// Preset selects a named weight preset. When set it takes precedence
	// over the individual weight fields below. Unset weight fields fall
	// back to the configured engine defaults.
	Preset string `json:"preset,omitempty"`

	PoseWeight      float64 `json:"pose_weight,omitempty"`
	FaceWeight      float64 `json:"face_weight,omitempty"`
	LipWeight       float64 `json:"lip_weight,omitempty"`
	FaceExpandRatio float64 `json:"face_expand_ratio,omitempty"`
}

// PortraitVideoCreatedEvent reports a finished job. The video itself lives in
// the artifact object store under VideoKey.
type PortraitVideoCreatedEvent struct {
	Header events.EventHeader `json:"header"`

	VideoKey        string  `json:"video_key"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
}
