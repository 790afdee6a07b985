// main package for the avatar-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/avatar-service/internal/config"
	"github.com/book-expert/avatar-service/internal/core"
	"github.com/book-expert/avatar-service/internal/engine"
	"github.com/book-expert/avatar-service/internal/fetch"
	"github.com/book-expert/avatar-service/internal/generation"
	"github.com/book-expert/avatar-service/internal/media"
	"github.com/book-expert/avatar-service/internal/metrics"
	"github.com/book-expert/avatar-service/internal/objectstore"
	"github.com/book-expert/avatar-service/internal/server"
	"github.com/book-expert/avatar-service/internal/worker"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const httpShutdownTimeout = 10 * time.Second

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// An optional .env keeps local development close to the deployed setup.
	_ = godotenv.Load()

	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "avatar-service-bootstrap.log")
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "avatar-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, finalLog)
}

// serve wires the collaborators and runs the worker and the HTTP API until a
// shutdown signal arrives.
func serve(cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.ArtifactBucket)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	invoker, presets, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}

	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	pipeline, err := buildPipeline(cfg, store, invoker, appMetrics, log)
	if err != nil {
		return err
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		jetstreamContext,
		cfg.NATS.VideoRequestedSubject,
		store,
		pipeline,
		presets,
		appMetrics,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerErr := make(chan error, 1)

	go func() {
		workerErr <- natsWorker.Run(ctx)
	}()

	var httpServer *server.Server

	if cfg.HTTP.Enabled {
		httpServer = server.New(cfg.HTTP, pipeline, presets, appMetrics, promhttp.Handler(), log)
		httpServer.Start()
		log.Info("HTTP API listening on %s:%d", cfg.HTTP.Address, cfg.HTTP.Port)
	}

	log.System("Avatar service initialized. Listening for jobs on subject: %s", cfg.NATS.VideoRequestedSubject)

	<-ctx.Done()

	log.Info("Shutdown signal received.")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()

		stopErr := httpServer.Stop(shutdownCtx)
		if stopErr != nil {
			log.Error("Error stopping HTTP server: %v", stopErr)
		}
	}

	return <-workerErr
}

func buildEngine(cfg *config.Config, log *logger.Logger) (*engine.Invoker, *engine.Presets, error) {
	invoker, err := engine.New(engine.Config{
		PythonBinary:   cfg.Engine.PythonBinary,
		ScriptPath:     cfg.Engine.ScriptPath,
		HomeDir:        cfg.Engine.HomeDir,
		Timeout:        time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
		MinOutputBytes: cfg.Engine.MinOutputBytes,
		Defaults: core.GenerationParams{
			PoseWeight:      cfg.Engine.PoseWeight,
			FaceWeight:      cfg.Engine.FaceWeight,
			LipWeight:       cfg.Engine.LipWeight,
			FaceExpandRatio: cfg.Engine.FaceExpandRatio,
		},
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}

	var presets *engine.Presets

	if cfg.Engine.PresetsPath != "" {
		presets, err = engine.LoadPresets(cfg.Engine.PresetsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load presets: %w", err)
		}

		log.Info("Loaded weight presets: %v", presets.Names())
	}

	return invoker, presets, nil
}

func buildPipeline(
	cfg *config.Config,
	store core.ObjectStore,
	invoker *engine.Invoker,
	appMetrics *metrics.Metrics,
	log *logger.Logger,
) (*generation.Service, error) {
	transcoder, err := media.NewTranscoder(
		cfg.Media.FFmpegBinary,
		media.WaveSpec{
			SampleRate: cfg.Media.SampleRate,
			Channels:   cfg.Media.Channels,
			Codec:      cfg.Media.Codec,
		},
		time.Duration(cfg.Media.TranscodeTimeoutSeconds)*time.Second,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcoder: %w", err)
	}

	pipeline, err := generation.New(generation.Deps{
		Fetcher:    fetch.NewClient(time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second, cfg.Fetch.MaxDownloadBytes),
		Store:      store,
		Prober:     media.NewProber(cfg.Media.FFprobeBinary, time.Duration(cfg.Media.ProbeTimeoutSeconds)*time.Second),
		Transcoder: transcoder,
		Generator:  invoker,
		Metrics:    appMetrics,
		WorkDir:    cfg.Paths.WorkDir,
		Log:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generation pipeline: %w", err)
	}

	return pipeline, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
