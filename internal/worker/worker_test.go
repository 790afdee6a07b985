// Package worker_test tests the NATS worker for the avatar service.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/avatar-service/internal/core"
	"github.com/book-expert/avatar-service/internal/fetch"
	"github.com/book-expert/avatar-service/internal/generation"
	"github.com/book-expert/avatar-service/internal/jobs"
	"github.com/book-expert/avatar-service/internal/media"
	"github.com/book-expert/avatar-service/internal/metrics"
	"github.com/book-expert/avatar-service/internal/worker"
	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockDownload = errors.New("mock download error")

// mockObjectStore serves job inputs and records uploaded artifacts.
type mockObjectStore struct {
	objects     map[string][]byte
	uploadedKey string
}

func (m *mockObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errMockDownload
	}

	return data, nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte) error {
	m.objects[key] = data
	m.uploadedKey = key

	return nil
}

// mockGenerator writes a fixed video payload and records the params it saw.
type mockGenerator struct {
	calledParams core.GenerationParams
}

func (m *mockGenerator) Generate(
	_ context.Context,
	_, _, outputPath string,
	params core.GenerationParams,
) error {
	m.calledParams = params

	return os.WriteFile(outputPath, []byte("generated-video"), 0o600)
}

func (m *mockGenerator) Defaults() core.GenerationParams {
	return core.GenerationParams{
		PoseWeight:      1.0,
		FaceWeight:      1.0,
		LipWeight:       1.0,
		FaceExpandRatio: 1.2,
	}
}

func (m *mockGenerator) Health() error {
	return nil
}

func writeStub(t *testing.T, name, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o700)
	require.NoError(t, err)

	return path
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		server.Shutdown()
		natsConnection.Close()
	})

	return natsConnection
}

func setupTest(t *testing.T) (
	*worker.NatsWorker,
	*mockObjectStore,
	*mockGenerator,
	*nats.Conn,
) {
	t.Helper()

	mockStore := &mockObjectStore{objects: map[string][]byte{
		"inputs/face.jpg":   []byte("jpeg-bytes"),
		"inputs/speech.wav": []byte("wav-bytes"),
	}}
	generator := &mockGenerator{}

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	transcoder, err := media.NewTranscoder(
		writeStub(t, "ffmpeg", `for last; do :; done
printf 'normalized-wav' > "$last"`),
		media.DefaultWaveSpec(),
		5*time.Second,
	)
	require.NoError(t, err)

	pipeline, err := generation.New(generation.Deps{
		Fetcher:    fetch.NewClient(5*time.Second, 1<<20),
		Store:      mockStore,
		Prober:     media.NewProber(writeStub(t, "ffprobe", "echo 7.5"), 5*time.Second),
		Transcoder: transcoder,
		Generator:  generator,
		Metrics:    nil,
		WorkDir:    t.TempDir(),
		Log:        testLogger,
	})
	require.NoError(t, err)

	natsConnection := createTestNatsClient(t)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	workerInstance, err := worker.NewNatsWorker(
		natsConnection,
		jetstreamContext,
		"test_subject",
		mockStore,
		pipeline,
		nil,
		metrics.New(prometheus.NewRegistry()),
		testLogger,
	)
	require.NoError(t, err)

	return workerInstance, mockStore, generator, natsConnection
}

// waitForSubscription gives the worker goroutine time to register its NATS
// subscription; a request published before the SUB reaches the server fails
// immediately with "no responders".
func waitForSubscription(t *testing.T, natsConnection *nats.Conn) {
	t.Helper()

	time.Sleep(250 * time.Millisecond)
	require.NoError(t, natsConnection.Flush())
}

func newTestEvent() *jobs.PortraitVideoRequestedEvent {
	return &jobs.PortraitVideoRequestedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		ImageKey: "inputs/face.jpg",
		AudioKey: "inputs/speech.wav",
	}
}

func TestMessageHandler_Success(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, generator, natsConnection := setupTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	waitForSubscription(t, natsConnection)

	testEvent := newTestEvent()
	eventData, err := json.Marshal(testEvent)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request("test_subject", eventData, 10*time.Second)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var replyEvent jobs.PortraitVideoCreatedEvent

	err = json.Unmarshal(replyMsg.Data, &replyEvent)
	require.NoError(t, err)

	assert.NotEmpty(t, mockStore.uploadedKey, "A video key should have been generated and uploaded")
	assert.Equal(t, mockStore.uploadedKey, replyEvent.VideoKey)
	assert.Equal(t, []byte("generated-video"), mockStore.objects[mockStore.uploadedKey])
	assert.Equal(t, testEvent.Header.WorkflowID, replyEvent.Header.WorkflowID)
	assert.Equal(t, int64(len("generated-video")), replyEvent.SizeBytes)
	assert.InEpsilon(t, 7.5, replyEvent.DurationSeconds, 0.001)

	// With no weight fields set, the engine defaults apply.
	assert.Equal(t, generator.Defaults(), generator.calledParams)

	cancel()

	shutdownErr := <-errChan
	assert.NoError(t, shutdownErr, "worker.Run should not error on graceful shutdown")
}

func TestMessageHandler_MissingInputProducesNoReply(t *testing.T) {
	t.Parallel()

	workerInstance, _, _, natsConnection := setupTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = workerInstance.Run(ctx)
	}()

	waitForSubscription(t, natsConnection)

	testEvent := newTestEvent()
	testEvent.AudioKey = "inputs/missing.wav"

	eventData, err := json.Marshal(testEvent)
	require.NoError(t, err)

	_, err = natsConnection.Request("test_subject", eventData, 2*time.Second)
	require.Error(t, err, "A failed job must not produce a reply")
}

func TestMessageHandler_UnknownPreset(t *testing.T) {
	t.Parallel()

	workerInstance, _, _, natsConnection := setupTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = workerInstance.Run(ctx)
	}()

	waitForSubscription(t, natsConnection)

	testEvent := newTestEvent()
	testEvent.Preset = "cinematic"

	eventData, err := json.Marshal(testEvent)
	require.NoError(t, err)

	_, err = natsConnection.Request("test_subject", eventData, 2*time.Second)
	require.Error(t, err, "An unknown preset must fail the job")
}
