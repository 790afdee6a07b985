// Package server exposes the synchronous HTTP API for the avatar service.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/avatar-service/internal/config"
	"github.com/book-expert/avatar-service/internal/core"
	"github.com/book-expert/avatar-service/internal/engine"
	"github.com/book-expert/avatar-service/internal/generation"
	"github.com/book-expert/avatar-service/internal/metrics"
	"github.com/book-expert/logger"
	"github.com/gin-gonic/gin"
)

const readHeaderTimeout = 10 * time.Second

// GenerateRequest is the JSON body of POST /v1/generate. Each input is
// provided as exactly one of an inline base64 payload or a downloadable URL.
// Unset weight fields fall back to the configured engine defaults.
type GenerateRequest struct {
	ImageBase64 string `json:"image_base64,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioURL    string `json:"audio_url,omitempty"`

	Preset string `json:"preset,omitempty"`

	PoseWeight      float64 `json:"pose_weight,omitempty"`
	FaceWeight      float64 `json:"face_weight,omitempty"`
	LipWeight       float64 `json:"lip_weight,omitempty"`
	FaceExpandRatio float64 `json:"face_expand_ratio,omitempty"`
}

// GenerateResponse is the JSON body of a successful generation.
type GenerateResponse struct {
	VideoBase64 string  `json:"video_base64"`
	Duration    float64 `json:"duration"`
	SizeBytes   int64   `json:"size_bytes"`
}

// Server serves the synchronous generation API.
type Server struct {
	pipeline     *generation.Service
	presets      *engine.Presets
	metrics      *metrics.Metrics
	log          *logger.Logger
	maxBodyBytes int64
	router       *gin.Engine
	httpServer   *http.Server
}

// New creates the HTTP server. presets and metricsHandler may be nil.
func New(
	cfg config.HTTPConfig,
	pipeline *generation.Service,
	presets *engine.Presets,
	appMetrics *metrics.Metrics,
	metricsHandler http.Handler,
	log *logger.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{
		pipeline:     pipeline,
		presets:      presets,
		metrics:      appMetrics,
		log:          log,
		maxBodyBytes: cfg.MaxBodyBytes,
		router:       router,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}

	router.Use(srv.observe)
	router.POST("/v1/generate", srv.handleGenerate)
	router.GET("/healthz", srv.handleHealth)

	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	return srv
}

// Handler returns the underlying router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server stopped unexpectedly: %v", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	return nil
}

func (s *Server) handleGenerate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)

	var req GenerateRequest

	err := c.ShouldBindJSON(&req)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("request body exceeds %d bytes", s.maxBodyBytes),
			})

			return
		}

		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})

		return
	}

	params, err := s.resolveParams(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	result, err := s.pipeline.Generate(c.Request.Context(), generation.Request{
		ImageBase64: req.ImageBase64,
		ImageURL:    req.ImageURL,
		ImageKey:    "",
		AudioBase64: req.AudioBase64,
		AudioURL:    req.AudioURL,
		AudioKey:    "",
		Params:      params,
	})
	if err != nil {
		s.log.Error("Generation request failed: %v", err)
		c.JSON(statusForError(err), gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, GenerateResponse{
		VideoBase64: base64.StdEncoding.EncodeToString(result.Video),
		Duration:    result.DurationSeconds,
		SizeBytes:   result.SizeBytes,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	err := s.pipeline.Health()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) resolveParams(req GenerateRequest) (core.GenerationParams, error) {
	if req.Preset != "" {
		if s.presets == nil {
			return core.GenerationParams{}, fmt.Errorf("%w: '%s' (no presets configured)",
				engine.ErrUnknownPreset, req.Preset)
		}

		return s.presets.Get(req.Preset)
	}

	return core.GenerationParams{
		PoseWeight:      req.PoseWeight,
		FaceWeight:      req.FaceWeight,
		LipWeight:       req.LipWeight,
		FaceExpandRatio: req.FaceExpandRatio,
	}, nil
}

// observe records per-request metrics.
func (s *Server) observe(c *gin.Context) {
	if s.metrics == nil {
		c.Next()

		return
	}

	start := time.Now()

	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}

	s.metrics.HTTPRequests.WithLabelValues(
		c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
	).Inc()
	s.metrics.HTTPRequestDuration.WithLabelValues(
		c.Request.Method, path,
	).Observe(time.Since(start).Seconds())
}

// statusForError maps validation failures to 400 and everything else to 500.
func statusForError(err error) int {
	badRequest := []error{
		generation.ErrNoImageSource,
		generation.ErrNoAudioSource,
		generation.ErrMultipleImageSources,
		generation.ErrMultipleAudioSources,
		generation.ErrUnsupportedImageType,
		core.ErrPoseWeightRange,
		core.ErrFaceWeightRange,
		core.ErrLipWeightRange,
		core.ErrFaceExpandRatioRange,
		engine.ErrUnknownPreset,
	}

	for _, candidate := range badRequest {
		if errors.Is(err, candidate) {
			return http.StatusBadRequest
		}
	}

	return http.StatusInternalServerError
}
