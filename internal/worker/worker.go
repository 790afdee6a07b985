// Package worker provides a NATS worker that processes portrait video jobs.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/avatar-service/internal/core"
	"github.com/book-expert/avatar-service/internal/engine"
	"github.com/book-expert/avatar-service/internal/generation"
	"github.com/book-expert/avatar-service/internal/jobs"
	"github.com/book-expert/avatar-service/internal/metrics"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// handleMessageTimeout bounds one whole job: input downloads, transcode and a
// full inference run (itself capped at 10 minutes by default).
const handleMessageTimeout = 15 * time.Minute

// NatsWorker listens for generation jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection   *nats.Conn
	jetstreamContext nats.JetStreamContext
	subject          string
	store            core.ObjectStore
	pipeline         *generation.Service
	presets          *engine.Presets
	metrics          *metrics.Metrics
	log              *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. presets may be nil
// when no presets file is configured.
func NewNatsWorker(
	natsConnection *nats.Conn,
	jetstreamContext nats.JetStreamContext,
	subject string,
	store core.ObjectStore,
	pipeline *generation.Service,
	presets *engine.Presets,
	appMetrics *metrics.Metrics,
	log *logger.Logger,
) (*NatsWorker, error) {
	return &NatsWorker{
		natsConnection:   natsConnection,
		jetstreamContext: jetstreamContext,
		subject:          subject,
		store:            store,
		pipeline:         pipeline,
		presets:          presets,
		metrics:          appMetrics,
		log:              log,
	}, nil
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	if w.metrics != nil {
		w.metrics.JobsReceived.Inc()
	}

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse job event: %v", err)
		w.markFailed()

		return
	}

	replyEvent, processErr := w.processJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to process job for workflow %s: %v", event.Header.WorkflowID, processErr)
		w.markFailed()

		return
	}

	if w.metrics != nil {
		w.metrics.JobsSucceeded.Inc()
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processJob resolves the job parameters, runs the pipeline, and uploads the
// resulting video to the artifact bucket.
func (w *NatsWorker) processJob(
	ctx context.Context,
	event *jobs.PortraitVideoRequestedEvent,
) (*jobs.PortraitVideoCreatedEvent, error) {
	params, err := w.resolveParams(event)
	if err != nil {
		return nil, err
	}

	result, err := w.pipeline.Generate(ctx, generation.Request{
		ImageBase64: "",
		ImageURL:    event.ImageURL,
		ImageKey:    event.ImageKey,
		AudioBase64: "",
		AudioURL:    event.AudioURL,
		AudioKey:    event.AudioKey,
		Params:      params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate portrait video: %w", err)
	}

	videoKey := uuid.NewString() + ".mp4"

	err = w.store.Upload(ctx, videoKey, result.Video)
	if err != nil {
		return nil, fmt.Errorf("failed to upload video for key '%s': %w", videoKey, err)
	}

	return &jobs.PortraitVideoCreatedEvent{
		Header:          event.Header,
		VideoKey:        videoKey,
		DurationSeconds: result.DurationSeconds,
		SizeBytes:       result.SizeBytes,
	}, nil
}

// resolveParams turns a preset name or the inline weight fields into
// generation parameters. Validation happens inside the pipeline.
func (w *NatsWorker) resolveParams(event *jobs.PortraitVideoRequestedEvent) (core.GenerationParams, error) {
	if event.Preset != "" {
		if w.presets == nil {
			return core.GenerationParams{}, fmt.Errorf("%w: '%s' (no presets configured)",
				engine.ErrUnknownPreset, event.Preset)
		}

		params, err := w.presets.Get(event.Preset)
		if err != nil {
			return core.GenerationParams{}, err
		}

		return params, nil
	}

	return core.GenerationParams{
		PoseWeight:      event.PoseWeight,
		FaceWeight:      event.FaceWeight,
		LipWeight:       event.LipWeight,
		FaceExpandRatio: event.FaceExpandRatio,
	}, nil
}

func (w *NatsWorker) markFailed() {
	if w.metrics != nil {
		w.metrics.JobsFailed.Inc()
	}
}

// publishReplyEvent marshals and responds with the PortraitVideoCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *jobs.PortraitVideoCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*jobs.PortraitVideoRequestedEvent, error) {
	var event jobs.PortraitVideoRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}
