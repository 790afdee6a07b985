// Command avatar-client is a small test client for the avatar service HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/book-expert/avatar-service/internal/server"
)

// Flag descriptions.
const (
	flagImageDesc   = "Path to the source portrait image (.jpg/.png)"
	flagAudioDesc   = "Path to the driving audio file"
	flagOutputDesc  = "Output video file path (.mp4)"
	flagURLDesc     = "Base URL of the avatar service"
	flagPresetDesc  = "Weight preset name (optional)"
	flagHealthDesc  = "Check service health and exit"
	flagTimeoutDesc = "Request timeout"
)

// Flag names.
const (
	flagImage   = "image"
	flagAudio   = "audio"
	flagOutput  = "output"
	flagURL     = "url"
	flagPreset  = "preset"
	flagHealth  = "health"
	flagTimeout = "timeout"
)

// Defaults.
const (
	defaultServiceURL = "http://localhost:8080"
	defaultOutputFile = "output.mp4"
	defaultTimeout    = 15 * time.Minute
	healthTimeout     = 10 * time.Second
)

// Error and log messages.
const (
	errImageAndAudioRequired = "both --image and --audio must be provided"
	errServiceNotHealthy     = "avatar service is not healthy: %v\n"
	msgServiceHealthy        = "avatar service is healthy"
	msgGenerated             = "Generated: %s (%.1fs of video, %d bytes)\n"
)

var errRequestFailed = errors.New("generation request failed")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	image   string
	audio   string
	output  string
	url     string
	preset  string
	health  bool
	timeout time.Duration
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	if flags.health {
		return checkHealth(flags.url)
	}

	if flags.image == "" || flags.audio == "" {
		flag.Usage()

		return errors.New(errImageAndAudioRequired)
	}

	return generate(flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.image, flagImage, "", flagImageDesc)
	flag.StringVar(&flags.audio, flagAudio, "", flagAudioDesc)
	flag.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flag.StringVar(&flags.url, flagURL, defaultServiceURL, flagURLDesc)
	flag.StringVar(&flags.preset, flagPreset, "", flagPresetDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	flag.Parse()

	return flags
}

// checkHealth queries /healthz and prints the result.
func checkHealth(baseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf(errServiceNotHealthy, err)

		return fmt.Errorf("health check failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("%w: health check returned status %d", errRequestFailed, resp.StatusCode)
		fmt.Printf(errServiceNotHealthy, err)

		return err
	}

	fmt.Println(msgServiceHealthy)

	return nil
}

// generate encodes the inputs, posts the generation request, and writes the
// decoded video to the output path.
func generate(flags appFlags) error {
	request, err := buildRequest(flags)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, flags.url+"/v1/generate", bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to post generation request: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", errRequestFailed, resp.StatusCode, string(body))
	}

	return writeVideo(body, flags.output)
}

// buildRequest reads and base64-encodes the input files.
func buildRequest(flags appFlags) (*server.GenerateRequest, error) {
	imageData, err := os.ReadFile(flags.image)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	audioData, err := os.ReadFile(flags.audio)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}

	return &server.GenerateRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(imageData),
		AudioBase64: base64.StdEncoding.EncodeToString(audioData),
		Preset:      flags.preset,
	}, nil
}

// writeVideo decodes the response payload and saves the video file.
func writeVideo(body []byte, outputPath string) error {
	var response server.GenerateResponse

	err := json.Unmarshal(body, &response)
	if err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	video, err := base64.StdEncoding.DecodeString(response.VideoBase64)
	if err != nil {
		return fmt.Errorf("failed to decode video payload: %w", err)
	}

	err = os.WriteFile(outputPath, video, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write video file: %w", err)
	}

	fmt.Printf(msgGenerated, outputPath, response.Duration, response.SizeBytes)

	return nil
}
