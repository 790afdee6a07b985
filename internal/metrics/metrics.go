// Package metrics contains the Prometheus instrumentation for the avatar service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	// Job metrics
	JobsReceived  prometheus.Counter
	JobsSucceeded prometheus.Counter
	JobsFailed    prometheus.Counter

	// Pipeline metrics
	InferenceDuration prometheus.Histogram
	TranscodesTotal   prometheus.Counter
	DownloadBytes     prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors against the given registerer.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "avatar_jobs_received_total",
			Help: "Total number of generation jobs received",
		}),
		JobsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "avatar_jobs_succeeded_total",
			Help: "Total number of generation jobs completed successfully",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "avatar_jobs_failed_total",
			Help: "Total number of generation jobs that failed",
		}),
		InferenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "avatar_inference_duration_seconds",
			Help:    "Wall-clock duration of model inference runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		TranscodesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "avatar_audio_transcodes_total",
			Help: "Total number of driving audio files normalized with ffmpeg",
		}),
		DownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "avatar_download_bytes_total",
			Help: "Total bytes downloaded for remote job inputs",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "avatar_http_requests_total",
			Help: "Total HTTP API requests by method, path and status",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "avatar_http_request_duration_seconds",
			Help:    "HTTP API request duration by method and path",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
